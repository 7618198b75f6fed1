package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"second-level-cache/internal/repository/entity/order"
)

func TestRepo_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	r := New()

	ord := &order.Order{ID: 1, Item: "pen"}
	ID, err := r.Save(ctx, ord)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ID)
	assert.Equal(t, uint64(1), ord.Version)

	ord.Item = "marker"
	_, err = r.Save(ctx, ord)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ord.Version)

	stale := order.Order{ID: 1, Version: 1}
	_, err = r.Save(ctx, &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	orders, err := r.Get(ctx, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, *ord, orders[1])

	require.NoError(t, r.Delete(ctx, 1))
	assert.ErrorIs(t, r.Delete(ctx, 1), ErrNotFound)

	_, err = r.Get(ctx, []uint64{1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepo_Latency(t *testing.T) {
	r := New()
	r.Latency = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Get(ctx, []uint64{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
