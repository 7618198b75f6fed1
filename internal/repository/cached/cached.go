package cached

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"second-level-cache/internal/cachemanager"
	"second-level-cache/internal/region"
	"second-level-cache/internal/repository/entity/order"
)

const concurrency = 100

func init() {
	cachemanager.RegisterType("order.Order", order.Order{})
}

type OrderRepoI interface {
	Get(ctx context.Context, IDs []uint64) (map[uint64]order.Order, error)
	Save(ctx context.Context, order *order.Order) (uint64, error)
	Delete(ctx context.Context, ID uint64) error
}

// Repo puts an order entity region in front of the order repository.
type Repo struct {
	orderRepository OrderRepoI
	access          region.EntityAccessStrategy
}

func New(orderRepository OrderRepoI, access region.EntityAccessStrategy) *Repo {
	return &Repo{
		orderRepository: orderRepository,
		access:          access,
	}
}

func (r *Repo) Get(ctx context.Context, IDs []uint64) ([]order.Order, error) {
	txTimestamp := r.access.Region().NextTimestamp()

	notInCacheCh := make(chan uint64, len(IDs))
	notInCache := make([]uint64, 0, len(IDs))
	inCacheCh := make(chan order.Order, len(IDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, ID := range IDs {
		g.Go(func() error {
			value, err := r.access.Get(gctx, ID, txTimestamp)
			if err != nil {
				return errors.Wrapf(err, "cache get %d", ID)
			}
			ord, ok := value.(order.Order)
			if !ok {
				notInCacheCh <- ID
				return nil
			}
			inCacheCh <- ord
			return nil
		})
	}

	err := g.Wait()
	close(notInCacheCh)
	close(inCacheCh)
	if err != nil {
		return nil, err
	}

	result := make([]order.Order, 0, len(IDs))
	for ord := range inCacheCh {
		result = append(result, ord)
	}
	for ID := range notInCacheCh {
		notInCache = append(notInCache, ID)
	}

	log.Debug().Int("cached", len(result)).Int("missed", len(notInCache)).Msg("orders looked up in cache")

	if len(notInCache) == 0 {
		return result, nil
	}

	ordersMap, err := r.orderRepository.Get(ctx, notInCache)
	if err != nil {
		return nil, errors.Wrap(err, "orderRepository.Get")
	}

	minimalPuts := r.access.Region().Settings().MinimalPutsEnabled
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, ord := range ordersMap {
		result = append(result, ord)

		g.Go(func() error {
			_, err := r.access.PutFromLoad(gctx, ord.ID, ord, txTimestamp, ord.Version, minimalPuts)
			return errors.Wrapf(err, "cache put %d", ord.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(ordersMap)).Msg("orders loaded from db")

	return result, nil
}

// Save inserts new orders (version zero) and updates existing ones, keeping
// the cached copy behind the soft-lock protocol of the region.
func (r *Repo) Save(ctx context.Context, ord *order.Order) error {
	if ord.Version == 0 {
		return r.insert(ctx, ord)
	}
	return r.update(ctx, ord)
}

func (r *Repo) insert(ctx context.Context, ord *order.Order) error {
	orderID, err := r.orderRepository.Save(ctx, ord)
	if err != nil {
		return errors.Wrap(err, "orderRepository.Save")
	}

	if _, err := r.access.Insert(ctx, orderID, *ord, ord.Version); err != nil {
		return errors.Wrap(err, "cache insert")
	}
	if _, err := r.access.AfterInsert(ctx, orderID, *ord, ord.Version); err != nil {
		return errors.Wrap(err, "cache after insert")
	}
	return nil
}

func (r *Repo) update(ctx context.Context, ord *order.Order) error {
	previous := ord.Version

	lock, err := r.access.LockItem(ctx, ord.ID, previous)
	if err != nil {
		return errors.Wrap(err, "cache lock")
	}

	if _, err := r.orderRepository.Save(ctx, ord); err != nil {
		if unlockErr := r.access.UnlockItem(ctx, ord.ID, lock); unlockErr != nil {
			log.Error().Err(unlockErr).Uint64("id", ord.ID).Msg("cache unlock after failed save")
		}
		return errors.Wrap(err, "orderRepository.Save")
	}

	if _, err := r.access.Update(ctx, ord.ID, *ord, ord.Version, previous); err != nil {
		return errors.Wrap(err, "cache update")
	}
	if _, err := r.access.AfterUpdate(ctx, ord.ID, *ord, ord.Version, previous, lock); err != nil {
		return errors.Wrap(err, "cache after update")
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, ID uint64) error {
	lock, err := r.access.LockItem(ctx, ID, nil)
	if err != nil {
		return errors.Wrap(err, "cache lock")
	}

	deleteErr := r.orderRepository.Delete(ctx, ID)
	if deleteErr == nil {
		if err := r.access.Remove(ctx, ID); err != nil {
			deleteErr = errors.Wrap(err, "cache remove")
		}
	} else {
		deleteErr = errors.Wrap(deleteErr, "orderRepository.Delete")
	}

	if err := r.access.UnlockItem(ctx, ID, lock); err != nil {
		return errors.Wrap(err, "cache unlock")
	}
	return deleteErr
}
