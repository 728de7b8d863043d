package parking

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/repository"
)

// DefaultMaxAttempts bounds the reservation retries spent on one sector
// before the allocator moves on to the next.
const DefaultMaxAttempts = 64

// Allocation is the result of a successful reservation.
type Allocation struct {
	Sector model.Sector
	Spot   model.Spot
}

// Allocator reserves a free spot for a freshly created session.
type Allocator struct {
	store       repository.Store
	occupancy   *Occupancy
	maxAttempts int
}

func NewAllocator(store repository.Store, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{store: store, occupancy: NewOccupancy(store), maxAttempts: maxAttempts}
}

// Allocate scans sectors in id order, skipping full ones, and within a
// sector keeps claiming the lowest-id free spot until a claim succeeds.
// A lost claim means another writer took the spot; the next free one is
// fetched again.  ErrNoAllocation is returned when nothing could be
// reserved.
func (a *Allocator) Allocate(ctx context.Context, sessionID uint64) (*Allocation, error) {
	sectors, err := a.store.ListSectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	for _, sector := range sectors {
		full, err := a.occupancy.IsSectorFull(ctx, sector.ID)
		if err != nil {
			return nil, err
		}
		if full {
			continue
		}
		spot, err := a.claimInSector(ctx, sector.ID, sessionID)
		if err != nil {
			return nil, err
		}
		if spot != nil {
			return &Allocation{Sector: sector, Spot: *spot}, nil
		}
	}
	return nil, ErrNoAllocation
}

func (a *Allocator) claimInSector(ctx context.Context, sectorID, sessionID uint64) (*model.Spot, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		spot, err := a.store.FirstFreeInSector(ctx, sectorID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("first free spot: %w", err)
		}
		ok, err := a.store.TryOccupy(ctx, spot.ID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("occupy spot %d: %w", spot.ID, err)
		}
		if ok {
			id := sessionID
			spot.OccupiedBy = &id
			return spot, nil
		}
	}
	return nil, nil
}
