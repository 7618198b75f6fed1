package regionfactory

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"second-level-cache/internal/cachemanager"
	"second-level-cache/internal/config"
	"second-level-cache/internal/region"
	"second-level-cache/internal/strategy"
	"second-level-cache/internal/timestamp"
)

type Properties = region.Properties

const (
	// ConfigurationResourceNameProperty names the cache configuration file.
	// Empty selects the built-in default.
	ConfigurationResourceNameProperty = "l2cache.configurationResourceName"
	// AlwaysAllowNonstopProperty permits read-write regions on nonstop
	// clustered caches.
	AlwaysAllowNonstopProperty = "l2cache.alwaysAllowNonstop"
	// AllowRacyEventualConfigsProperty permits read-write regions on
	// eventually consistent clustered caches.
	AllowRacyEventualConfigsProperty = "l2cache.allowRacyEventualConfigs"
)

var (
	ErrAlreadyStarted = errors.New("attempt to restart an already started region factory")
	ErrNotStarted     = errors.New("region factory not started")
)

// RegionFactory builds the cache regions of a persistence unit.
type RegionFactory interface {
	Start(settings region.Settings, props Properties) error
	Stop()
	IsMinimalPutsEnabledByDefault() bool
	DefaultAccessType() region.AccessType
	NextTimestamp() int64
	Manager() *cachemanager.Manager

	BuildEntityRegion(name string, props Properties, description region.CacheDataDescription) (*region.EntityRegion, error)
	BuildCollectionRegion(name string, props Properties, description region.CacheDataDescription) (*region.CollectionRegion, error)
	BuildNaturalIDRegion(name string, props Properties, description region.CacheDataDescription) (*region.NaturalIDRegion, error)
	BuildQueryResultsRegion(name string, props Properties) (*region.QueryResultsRegion, error)
	BuildTimestampsRegion(name string, props Properties) (*region.TimestampsRegion, error)
}

// base carries what both factory flavours share; they differ only in how the
// manager is obtained and released.
type base struct {
	mu         sync.RWMutex
	manager    *cachemanager.Manager
	settings   region.Settings
	strategies region.AccessStrategyFactory

	opts     []cachemanager.Option
	creating singleflight.Group
}

// IsMinimalPutsEnabledByDefault is true: skipping puts for cached keys costs
// local caches nothing and saves clustered caches a round trip.
func (b *base) IsMinimalPutsEnabledByDefault() bool { return true }

func (b *base) DefaultAccessType() region.AccessType { return region.ReadWrite }

func (b *base) NextTimestamp() int64 { return timestamp.Next() }

func (b *base) Manager() *cachemanager.Manager {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manager
}

// configure records the settings and builds the strategy factory from props,
// returning the corrected cache configuration to start the manager with.
func (b *base) configure(settings region.Settings, props Properties) (*config.Configuration, error) {
	cfg, err := loadConfiguration(props[ConfigurationResourceNameProperty])
	if err != nil {
		return nil, err
	}

	b.settings = settings
	b.strategies = &strategy.NonstopFactory{
		Factory: &strategy.Factory{
			AlwaysAllowNonstop: props.Bool(AlwaysAllowNonstopProperty, false),
			AllowRacyConfigs:   props.Bool(AllowRacyEventualConfigsProperty, false),
		},
		Handler: region.NonstopHandler{
			Propagate: props.Bool(region.PropagateNonstopErrorsProperty, false),
		},
	}
	return config.Correct(cfg), nil
}

func (b *base) started() (*cachemanager.Manager, region.Settings, region.AccessStrategyFactory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.manager == nil {
		return nil, region.Settings{}, nil, ErrNotStarted
	}
	return b.manager, b.settings, b.strategies, nil
}

// cache returns the named cache, creating it from the default template when
// the configuration does not mention it.
func (b *base) cache(m *cachemanager.Manager, name string) (*cachemanager.Cache, error) {
	c := m.Cache(name)
	if c == nil {
		v, err, _ := b.creating.Do(name, func() (any, error) {
			if c := m.Cache(name); c != nil {
				return c, nil
			}

			log.Warn().Str("region", name).Msg("no cache configuration found for region, using defaults")
			if err := m.AddCache(name); err != nil && !errors.Is(err, cachemanager.ErrCacheExists) {
				return nil, errors.Wrapf(err, "add cache %s", name)
			}
			log.Debug().Str("region", name).Msg("started cache region")

			return m.Cache(name), nil
		})
		if err != nil {
			return nil, err
		}
		c, _ = v.(*cachemanager.Cache)
	}
	if c == nil {
		return nil, errors.Wrapf(cachemanager.ErrShutdown, "region %s", name)
	}

	if err := config.ValidateCache(name, c.Configuration()); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *base) BuildEntityRegion(
	name string,
	props Properties,
	description region.CacheDataDescription,
) (*region.EntityRegion, error) {
	m, settings, strategies, err := b.started()
	if err != nil {
		return nil, err
	}
	c, err := b.cache(m, name)
	if err != nil {
		return nil, err
	}
	return region.NewEntityRegion(strategies, c, settings, description, props)
}

func (b *base) BuildCollectionRegion(
	name string,
	props Properties,
	description region.CacheDataDescription,
) (*region.CollectionRegion, error) {
	m, settings, strategies, err := b.started()
	if err != nil {
		return nil, err
	}
	c, err := b.cache(m, name)
	if err != nil {
		return nil, err
	}
	return region.NewCollectionRegion(strategies, c, settings, description, props)
}

func (b *base) BuildNaturalIDRegion(
	name string,
	props Properties,
	description region.CacheDataDescription,
) (*region.NaturalIDRegion, error) {
	m, settings, strategies, err := b.started()
	if err != nil {
		return nil, err
	}
	c, err := b.cache(m, name)
	if err != nil {
		return nil, err
	}
	return region.NewNaturalIDRegion(strategies, c, settings, description, props)
}

func (b *base) BuildQueryResultsRegion(name string, props Properties) (*region.QueryResultsRegion, error) {
	m, _, _, err := b.started()
	if err != nil {
		return nil, err
	}
	c, err := b.cache(m, name)
	if err != nil {
		return nil, err
	}
	return region.NewQueryResultsRegion(c, props)
}

func (b *base) BuildTimestampsRegion(name string, props Properties) (*region.TimestampsRegion, error) {
	m, _, _, err := b.started()
	if err != nil {
		return nil, err
	}
	c, err := b.cache(m, name)
	if err != nil {
		return nil, err
	}
	return region.NewTimestampsRegion(c, props)
}

// Factory owns a cache manager of its own.
type Factory struct {
	base
}

func New(opts ...cachemanager.Option) *Factory {
	return &Factory{base{opts: opts}}
}

func (f *Factory) Start(settings region.Settings, props Properties) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.manager != nil {
		log.Warn().Str("manager", f.manager.Name()).Msg("attempt to restart an already started region factory, ignoring")
		return nil
	}

	cfg, err := f.configure(settings, props)
	if err != nil {
		return err
	}

	m, err := cachemanager.New(cfg, f.opts...)
	if err != nil {
		if errors.Is(err, cachemanager.ErrManagerExists) {
			return errors.Wrapf(ErrAlreadyStarted,
				"stop the factory between repeated starts or use a singleton factory: %v", err)
		}
		return errors.Wrap(err, "cachemanager.New")
	}
	f.manager = m
	return nil
}

func (f *Factory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.manager != nil {
		f.manager.Shutdown()
		f.manager = nil
	}
}

// references counts the started singleton factories sharing the process
// manager.
var references struct {
	sync.Mutex
	n int
}

// SingletonFactory shares the process-wide cache manager with every other
// singleton factory. The manager shuts down when the last of them stops.
type SingletonFactory struct {
	base
}

func NewSingleton(opts ...cachemanager.Option) *SingletonFactory {
	return &SingletonFactory{base{opts: opts}}
}

func (f *SingletonFactory) Start(settings region.Settings, props Properties) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.configure(settings, props)
	if err != nil {
		return err
	}

	references.Lock()
	defer references.Unlock()

	m, err := cachemanager.Create(cfg, f.opts...)
	if err != nil {
		return errors.Wrap(err, "cachemanager.Create")
	}
	if f.manager == nil {
		references.n++
	}
	f.manager = m
	return nil
}

func (f *SingletonFactory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.manager == nil {
		return
	}

	references.Lock()
	references.n--
	if references.n == 0 {
		f.manager.Shutdown()
	}
	references.Unlock()

	f.manager = nil
}
