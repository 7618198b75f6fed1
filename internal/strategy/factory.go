package strategy

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/config"
	"second-level-cache/internal/region"
)

// Factory builds access strategies after checking that the region's cache
// can honour the requested access type.
type Factory struct {
	// AlwaysAllowNonstop permits read-write access on nonstop clustered caches.
	AlwaysAllowNonstop bool
	// AllowRacyConfigs permits read-write access on eventually consistent
	// clustered caches.
	AllowRacyConfigs bool
}

func (f *Factory) CreateEntityRegionAccessStrategy(
	r *region.EntityRegion,
	t region.AccessType,
) (region.EntityAccessStrategy, error) {
	c, err := f.build(r, t)
	if err != nil {
		return nil, err
	}
	return &entityStrategy{core: c, region: r}, nil
}

func (f *Factory) CreateCollectionRegionAccessStrategy(
	r *region.CollectionRegion,
	t region.AccessType,
) (region.CollectionAccessStrategy, error) {
	c, err := f.build(r, t)
	if err != nil {
		return nil, err
	}
	return &collectionStrategy{core: c, region: r}, nil
}

func (f *Factory) CreateNaturalIDRegionAccessStrategy(
	r *region.NaturalIDRegion,
	t region.AccessType,
) (region.NaturalIDAccessStrategy, error) {
	c, err := f.build(r, t)
	if err != nil {
		return nil, err
	}
	return &naturalIDStrategy{core: c, region: r}, nil
}

func (f *Factory) build(r region.Transactional, t region.AccessType) (core, error) {
	if err := f.CheckAccessTypeCompatibility(t, r.Cache().Configuration()); err != nil {
		return nil, errors.Wrapf(err, "region %s", r.Name())
	}

	switch t {
	case region.ReadOnly:
		if r.Description().Mutable {
			log.Warn().Str("region", r.Name()).Msg("read-only cache configured for mutable data")
		}
		return newReadOnly(r), nil
	case region.ReadWrite:
		return newReadWrite(r), nil
	case region.NonstrictReadWrite:
		return newNonstrict(r), nil
	case region.Transactional:
		return newTransactional(r), nil
	default:
		return nil, errors.Wrapf(region.ErrUnknownAccessType, "%d", int(t))
	}
}

// CheckAccessTypeCompatibility rejects combinations the cache cannot serve
// safely: read-write on eventual or nonstop clustered caches (unless allowed)
// and transactional access without XA.
func (f *Factory) CheckAccessTypeCompatibility(t region.AccessType, cfg config.CacheConfiguration) error {
	switch t {
	case region.ReadWrite:
		if !cfg.IsClustered() {
			return nil
		}
		if !f.AllowRacyConfigs && cfg.Clustered.Consistency == config.ConsistencyEventual {
			return errors.Wrapf(ErrIncompatibleAccess,
				"using an eventual clustered cache with %s access type is not supported", t)
		}
		if !f.AlwaysAllowNonstop && cfg.IsNonstopEnabled() {
			return errors.Wrapf(ErrIncompatibleAccess,
				"using a non-stop clustered cache with %s access type is not supported", t)
		}
	case region.Transactional:
		if !cfg.IsXATransactional() && !cfg.IsXAStrictTransactional() {
			return errors.Wrapf(ErrIncompatibleAccess,
				"%s access is only supported with XA transactional caches", t)
		}
	}
	return nil
}

// NonstopFactory wraps the strategies of Factory so that nonstop timeouts from
// clustered caches degrade to misses and no-ops, unless Handler propagates
// them.
type NonstopFactory struct {
	Factory *Factory
	Handler region.NonstopHandler
}

func (f *NonstopFactory) CreateEntityRegionAccessStrategy(
	r *region.EntityRegion,
	t region.AccessType,
) (region.EntityAccessStrategy, error) {
	c, err := f.Factory.build(r, t)
	if err != nil {
		return nil, err
	}
	return &entityStrategy{core: f.wrap(c), region: r}, nil
}

func (f *NonstopFactory) CreateCollectionRegionAccessStrategy(
	r *region.CollectionRegion,
	t region.AccessType,
) (region.CollectionAccessStrategy, error) {
	c, err := f.Factory.build(r, t)
	if err != nil {
		return nil, err
	}
	return &collectionStrategy{core: f.wrap(c), region: r}, nil
}

func (f *NonstopFactory) CreateNaturalIDRegionAccessStrategy(
	r *region.NaturalIDRegion,
	t region.AccessType,
) (region.NaturalIDAccessStrategy, error) {
	c, err := f.Factory.build(r, t)
	if err != nil {
		return nil, err
	}
	return &naturalIDStrategy{core: f.wrap(c), region: r}, nil
}

func (f *NonstopFactory) wrap(c core) core {
	return &nonstop{next: c, handler: f.Handler}
}
