package cachemanager

import "github.com/pkg/errors"

var (
	// ErrManagerExists is returned when a live manager already uses the requested name.
	ErrManagerExists = errors.New("cache manager with the same name already exists")

	ErrCacheExists   = errors.New("cache already exists")
	ErrCacheNotFound = errors.New("cache not found")
	ErrShutdown      = errors.New("cache manager is shut down")

	// ErrNoCluster is returned when a clustered cache is requested from a
	// manager configured without a cluster.
	ErrNoCluster = errors.New("no cluster configured")

	// ErrNonStop signals that a clustered operation gave up: the call timed out
	// or the cluster circuit is open.
	ErrNonStop = errors.New("nonstop cache operation timed out")
)
