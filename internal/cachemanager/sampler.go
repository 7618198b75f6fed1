package cachemanager

import (
	"context"
	"time"
)

const defaultSampleInterval = time.Second

// sampler periodically converts cache counters into per-second samples.
type sampler struct {
	manager  *Manager
	interval time.Duration
}

func (s *sampler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.manager.caches() {
				c.stats.sample(s.interval)
			}
		}
	}
}
