package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"second-level-cache/internal/repository/entity/order"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order was changed concurrently")
)

// Repo is an in-memory stand-in for the database.
type Repo struct {
	mu      sync.Mutex
	DB      sync.Map
	Latency time.Duration
}

func New() *Repo {
	return &Repo{Latency: time.Millisecond}
}

func (r *Repo) wait(ctx context.Context) error {
	// mock db latency
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.Latency):
		return nil
	}
}

func (r *Repo) Get(ctx context.Context, IDs []uint64) (map[uint64]order.Order, error) {
	ordersMap := make(map[uint64]order.Order, len(IDs))

	for _, ID := range IDs {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}

		value, ok := r.DB.Load(ID)
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "id %d", ID)
		}
		ord, ok := value.(order.Order)
		if !ok {
			return nil, errors.Errorf("type casting error for id %d", ID)
		}
		ordersMap[ord.ID] = ord
	}

	return ordersMap, nil
}

// Save stores ord and bumps its version. The version ord carries must match
// the stored one; zero means a new order.
func (r *Repo) Save(ctx context.Context, ord *order.Order) (uint64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var stored uint64
	if value, ok := r.DB.Load(ord.ID); ok {
		stored = value.(order.Order).Version
	}
	if stored != ord.Version {
		return 0, errors.Wrapf(ErrVersionConflict, "id %d has version %d, not %d", ord.ID, stored, ord.Version)
	}

	ord.Version++
	r.DB.Store(ord.ID, *ord)
	return ord.ID, nil
}

func (r *Repo) Delete(ctx context.Context, ID uint64) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	if _, ok := r.DB.LoadAndDelete(ID); !ok {
		return errors.Wrapf(ErrNotFound, "id %d", ID)
	}
	return nil
}
