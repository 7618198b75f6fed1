package config

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type TransactionalMode string

const (
	TransactionalOff      TransactionalMode = "off"
	TransactionalLocal    TransactionalMode = "local"
	TransactionalXA       TransactionalMode = "xa"
	TransactionalXAStrict TransactionalMode = "xa_strict"
)

type Consistency string

const (
	ConsistencyStrong   Consistency = "strong"
	ConsistencyEventual Consistency = "eventual"
)

type ValueMode string

const (
	ValueModeSerialization ValueMode = "serialization"
	ValueModeIdentity      ValueMode = "identity"
)

type TimeoutBehavior string

const (
	TimeoutBehaviorException  TimeoutBehavior = "exception"
	TimeoutBehaviorNoop       TimeoutBehavior = "noop"
	TimeoutBehaviorLocalReads TimeoutBehavior = "localReads"
)

const (
	DefaultNonstopTimeoutMillis = 30000
	DefaultOrphanEvictionPeriod = 4
)

var (
	ErrInvalidConfiguration = errors.New("invalid cache configuration")
	ErrIdentityValueMode    = errors.New("identity value mode cannot be used with clustered cache regions")
)

// Configuration describes a cache manager and the caches it owns.
type Configuration struct {
	Name         string                `yaml:"name"`
	Cluster      *ClusterConfiguration `yaml:"cluster,omitempty"`
	DefaultCache CacheConfiguration    `yaml:"defaultCache"`
	Caches       []CacheConfiguration  `yaml:"caches,omitempty"`
}

// ClusterConfiguration points clustered caches at a redis deployment.
type ClusterConfiguration struct {
	// URL format: redis://[user:password@]host:port[/db]
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	PoolSize  int    `yaml:"poolSize,omitempty"`
}

// CacheConfiguration holds the settings of a single named cache.
type CacheConfiguration struct {
	Name               string                  `yaml:"name,omitempty"`
	MaxEntriesInMemory int                     `yaml:"maxEntriesInMemory"`
	MaxEntriesTotal    int                     `yaml:"maxEntriesTotal,omitempty"`
	TimeToIdleSeconds  int64                   `yaml:"timeToIdleSeconds,omitempty"`
	TimeToLiveSeconds  int64                   `yaml:"timeToLiveSeconds,omitempty"`
	Eternal            bool                    `yaml:"eternal,omitempty"`
	Logging            bool                    `yaml:"logging,omitempty"`
	TransactionalMode  TransactionalMode       `yaml:"transactionalMode,omitempty"`
	Clustered          *ClusteredConfiguration `yaml:"clustered,omitempty"`
}

// ClusteredConfiguration marks a cache as stored in the shared cluster tier.
type ClusteredConfiguration struct {
	Consistency          Consistency           `yaml:"consistency,omitempty"`
	ValueMode            ValueMode             `yaml:"valueMode,omitempty"`
	OrphanEviction       bool                  `yaml:"orphanEviction,omitempty"`
	OrphanEvictionPeriod int                   `yaml:"orphanEvictionPeriod,omitempty"`
	Nonstop              *NonstopConfiguration `yaml:"nonstop,omitempty"`
}

// NonstopConfiguration bounds how long a clustered operation may block.
type NonstopConfiguration struct {
	Enabled         bool            `yaml:"enabled"`
	TimeoutMillis   int64           `yaml:"timeoutMillis,omitempty"`
	TimeoutBehavior TimeoutBehavior `yaml:"timeoutBehavior,omitempty"`
}

func (c *CacheConfiguration) IsClustered() bool {
	return c.Clustered != nil
}

func (c *CacheConfiguration) IsXATransactional() bool {
	return c.TransactionalMode == TransactionalXA
}

func (c *CacheConfiguration) IsXAStrictTransactional() bool {
	return c.TransactionalMode == TransactionalXAStrict
}

func (c *CacheConfiguration) IsNonstopEnabled() bool {
	return c.Clustered != nil && c.Clustered.Nonstop != nil && c.Clustered.Nonstop.Enabled
}

// Clone returns a deep copy.
func (c CacheConfiguration) Clone() CacheConfiguration {
	if c.Clustered != nil {
		clustered := *c.Clustered
		if clustered.Nonstop != nil {
			nonstop := *clustered.Nonstop
			clustered.Nonstop = &nonstop
		}
		c.Clustered = &clustered
	}
	return c
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	out := &Configuration{
		Name:         c.Name,
		DefaultCache: c.DefaultCache.Clone(),
	}
	if c.Cluster != nil {
		cluster := *c.Cluster
		out.Cluster = &cluster
	}
	if len(c.Caches) > 0 {
		out.Caches = make([]CacheConfiguration, 0, len(c.Caches))
		for _, cache := range c.Caches {
			out.Caches = append(out.Caches, cache.Clone())
		}
	}
	return out
}

// Cache returns the configuration of the named cache.
func (c *Configuration) Cache(name string) (CacheConfiguration, bool) {
	for _, cache := range c.Caches {
		if cache.Name == name {
			return cache, true
		}
	}
	return CacheConfiguration{}, false
}

// Validate checks the manager-level configuration.
func (c *Configuration) Validate() error {
	seen := make(map[string]struct{}, len(c.Caches))
	for i := range c.Caches {
		cache := &c.Caches[i]
		if strings.TrimSpace(cache.Name) == "" {
			return errors.Wrapf(ErrInvalidConfiguration, "cache #%d has no name", i)
		}
		if _, ok := seen[cache.Name]; ok {
			return errors.Wrapf(ErrInvalidConfiguration, "duplicate cache %q", cache.Name)
		}
		seen[cache.Name] = struct{}{}

		if err := cache.validateValues(); err != nil {
			return errors.Wrapf(err, "cache %q", cache.Name)
		}
		if cache.IsClustered() && (c.Cluster == nil || c.Cluster.URL == "") {
			return errors.Wrapf(ErrInvalidConfiguration, "cache %q is clustered but no cluster url is configured", cache.Name)
		}
	}
	if err := c.DefaultCache.validateValues(); err != nil {
		return errors.Wrap(err, "default cache")
	}
	return nil
}

func (c *CacheConfiguration) validateValues() error {
	if c.MaxEntriesInMemory < 0 || c.MaxEntriesTotal < 0 {
		return errors.Wrap(ErrInvalidConfiguration, "max entries must not be negative")
	}
	if c.TimeToIdleSeconds < 0 || c.TimeToLiveSeconds < 0 {
		return errors.Wrap(ErrInvalidConfiguration, "expiry seconds must not be negative")
	}
	switch c.TransactionalMode {
	case "", TransactionalOff, TransactionalLocal, TransactionalXA, TransactionalXAStrict:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown transactional mode %q", c.TransactionalMode)
	}
	if c.Clustered == nil {
		return nil
	}
	switch c.Clustered.Consistency {
	case "", ConsistencyStrong, ConsistencyEventual:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown consistency %q", c.Clustered.Consistency)
	}
	switch c.Clustered.ValueMode {
	case "", ValueModeSerialization, ValueModeIdentity:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown value mode %q", c.Clustered.ValueMode)
	}
	return nil
}

// ValidateCache rejects cache settings that cannot back a persistence region.
func ValidateCache(name string, c CacheConfiguration) error {
	if c.IsClustered() && c.Clustered.ValueMode == ValueModeIdentity {
		return errors.Wrapf(ErrIdentityValueMode, "clustered cache %q", name)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func Marshal(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "yaml.Marshal")
	}
	return string(out), nil
}
