package cachemanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/config"
)

const DefaultName = "__DEFAULT__"

type Status int

const (
	StatusAlive Status = iota
	StatusShutdown
)

func (s Status) String() string {
	if s == StatusAlive {
		return "alive"
	}
	return "shutdown"
}

// Manager owns a set of named caches built from one configuration.
type Manager struct {
	name      string
	original  *config.Configuration
	defaults  config.CacheConfiguration
	cluster   *config.ClusterConfiguration
	client    *redis.Client
	keyPrefix string

	mu     sync.RWMutex
	byName map[string]*Cache
	status Status

	cancel context.CancelFunc
	done   chan struct{}
}

type options struct {
	sampleInterval time.Duration
}

type Option func(*options)

// WithSampleInterval sets how often per-second statistics samples are taken.
func WithSampleInterval(d time.Duration) Option {
	return func(o *options) {
		o.sampleInterval = d
	}
}

var (
	liveMu sync.Mutex
	live   = make(map[string]*Manager)
	shared *Manager
)

// New builds a manager and every cache named in cfg. Names are unique among
// live managers.
func New(cfg *config.Configuration, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	liveMu.Lock()
	defer liveMu.Unlock()

	return newLocked(cfg, opts...)
}

func newLocked(cfg *config.Configuration, opts ...Option) (*Manager, error) {
	o := options{sampleInterval: defaultSampleInterval}
	for _, opt := range opts {
		opt(&o)
	}

	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	if _, ok := live[name]; ok {
		return nil, errors.Wrapf(ErrManagerExists, "name %q", name)
	}

	m := &Manager{
		name:     name,
		original: cfg.Clone(),
		defaults: cfg.DefaultCache.Clone(),
		byName:   make(map[string]*Cache, len(cfg.Caches)),
	}

	if cfg.Cluster != nil && cfg.Cluster.URL != "" {
		cluster := *cfg.Cluster
		m.cluster = &cluster
		m.keyPrefix = cluster.KeyPrefix

		redisOpts, err := redis.ParseURL(cluster.URL)
		if err != nil {
			return nil, errors.Wrap(err, "redis.ParseURL")
		}
		if cluster.PoolSize > 0 {
			redisOpts.PoolSize = cluster.PoolSize
		}
		m.client = redis.NewClient(redisOpts)
	}

	for _, cacheCfg := range cfg.Caches {
		c, err := newCache(m, cacheCfg.Clone())
		if err != nil {
			m.closeClient()
			return nil, err
		}
		m.byName[c.name] = c
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		(&sampler{manager: m, interval: o.sampleInterval}).Start(ctx)
	}()

	live[name] = m

	log.Debug().
		Str("manager", name).
		Int("caches", len(m.byName)).
		Bool("clustered", m.client != nil).
		Msg("cache manager started")

	return m, nil
}

// Create returns the process-wide shared manager, building it from cfg when
// none is alive. cfg is ignored when the shared manager already runs.
func Create(cfg *config.Configuration, opts ...Option) (*Manager, error) {
	liveMu.Lock()
	defer liveMu.Unlock()

	if shared != nil && shared.Status() == StatusAlive {
		return shared, nil
	}

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := newLocked(cfg, opts...)
	if err != nil {
		return nil, err
	}
	shared = m
	return m, nil
}

func (m *Manager) Name() string { return m.name }

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Cache returns the named cache or nil.
func (m *Manager) Cache(name string) *Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.status != StatusAlive {
		return nil
	}
	return m.byName[name]
}

// AddCache creates name from the default cache template.
func (m *Manager) AddCache(name string) error {
	if name == "" {
		return errors.Wrap(config.ErrInvalidConfiguration, "empty cache name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAlive {
		return ErrShutdown
	}
	if _, ok := m.byName[name]; ok {
		return errors.Wrapf(ErrCacheExists, "cache %q", name)
	}

	cfg := m.defaults.Clone()
	cfg.Name = name
	c, err := newCache(m, cfg)
	if err != nil {
		return err
	}
	m.byName[name] = c

	log.Debug().Str("manager", m.name).Str("cache", name).Msg("cache added from defaults")
	return nil
}

// RemoveCache detaches and disposes name. Unknown names are ignored.
func (m *Manager) RemoveCache(name string) {
	m.mu.Lock()
	c, ok := m.byName[name]
	delete(m.byName, name)
	m.mu.Unlock()

	if ok {
		c.dispose()
	}
}

// CacheNames returns the names of all caches in lexical order.
func (m *Manager) CacheNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) caches() []*Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Cache, 0, len(m.byName))
	for _, c := range m.byName {
		out = append(out, c)
	}
	return out
}

// Shutdown disposes every cache and releases the manager's name. Calling it
// more than once is harmless.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.status == StatusShutdown {
		m.mu.Unlock()
		return
	}
	m.status = StatusShutdown
	caches := m.byName
	m.byName = make(map[string]*Cache)
	m.mu.Unlock()

	m.cancel()
	<-m.done

	for _, c := range caches {
		c.dispose()
	}
	m.closeClient()

	liveMu.Lock()
	if live[m.name] == m {
		delete(live, m.name)
	}
	if shared == m {
		shared = nil
	}
	liveMu.Unlock()

	log.Debug().Str("manager", m.name).Msg("cache manager shut down")
}

func (m *Manager) closeClient() {
	if m.client == nil {
		return
	}
	if err := m.client.Close(); err != nil {
		log.Warn().Err(err).Str("manager", m.name).Msg("closing cluster client")
	}
}

// ActiveConfigurationText renders the configuration currently in effect.
func (m *Manager) ActiveConfigurationText() (string, error) {
	active := &config.Configuration{
		Name:         m.name,
		DefaultCache: m.defaults.Clone(),
	}
	if m.cluster != nil {
		cluster := *m.cluster
		active.Cluster = &cluster
	}
	for _, name := range m.CacheNames() {
		if c := m.Cache(name); c != nil {
			active.Caches = append(active.Caches, c.Configuration())
		}
	}
	return config.Marshal(active)
}

// ActiveConfigurationTextFor renders the current settings of one cache.
func (m *Manager) ActiveConfigurationTextFor(name string) (string, error) {
	c := m.Cache(name)
	if c == nil {
		return "", errors.Wrapf(ErrCacheNotFound, "cache %q", name)
	}
	return config.Marshal(c.Configuration())
}

// OriginalConfigurationText renders the configuration the manager was built from.
func (m *Manager) OriginalConfigurationText() (string, error) {
	return config.Marshal(m.original)
}

// OriginalConfigurationTextFor renders the configured settings of one cache;
// caches added at runtime report the default template.
func (m *Manager) OriginalConfigurationTextFor(name string) (string, error) {
	if cfg, ok := m.original.Cache(name); ok {
		return config.Marshal(cfg)
	}
	if m.Cache(name) == nil {
		return "", errors.Wrapf(ErrCacheNotFound, "cache %q", name)
	}
	cfg := m.original.DefaultCache.Clone()
	cfg.Name = name
	return config.Marshal(cfg)
}
