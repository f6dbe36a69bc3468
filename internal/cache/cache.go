package cache

import (
	"context"
	"time"

	"github.com/irons28/warehouse-tracker-all4/internal/core"
)

// OccupancyCache fronts the active-occupancy snapshot that the Sheets-sync
// collaborator polls. Implementations must treat misses and backend errors
// the same way: (nil, false, err) — callers always fall through to the store.
type OccupancyCache interface {
	Get(ctx context.Context, key string) ([]core.Pallet, bool, error)
	Set(ctx context.Context, key string, value []core.Pallet, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopOccupancyCache struct{}

func (NoopOccupancyCache) Get(_ context.Context, _ string) ([]core.Pallet, bool, error) {
	return nil, false, nil
}

func (NoopOccupancyCache) Set(_ context.Context, _ string, _ []core.Pallet, _ time.Duration) error {
	return nil
}

func (NoopOccupancyCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
