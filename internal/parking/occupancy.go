package parking

import (
	"context"
	"errors"

	"github.com/iliyamo/garage-parking/internal/repository"
)

// Occupancy answers capacity questions against whatever store view it is
// given, usually the one bound to the current transaction.
type Occupancy struct {
	store repository.Store
}

func NewOccupancy(store repository.Store) *Occupancy { return &Occupancy{store: store} }

func (o *Occupancy) TotalCapacity(ctx context.Context) (int64, error) {
	return o.store.CountSpots(ctx)
}

func (o *Occupancy) TakenGlobal(ctx context.Context) (int64, error) {
	return o.store.CountOccupied(ctx)
}

// GlobalRatio returns taken/total in hundredths rounded half-up, or 0 for
// an empty catalog.
func (o *Occupancy) GlobalRatio(ctx context.Context) (int64, error) {
	total, err := o.TotalCapacity(ctx)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, nil
	}
	taken, err := o.TakenGlobal(ctx)
	if err != nil {
		return 0, err
	}
	return Ratio(taken, total), nil
}

// IsSectorFull reports whether the sector has reached its capacity.  An
// unknown sector has capacity zero and is always full.
func (o *Occupancy) IsSectorFull(ctx context.Context, sectorID uint64) (bool, error) {
	sector, err := o.store.GetSector(ctx, sectorID)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	taken, err := o.store.CountOccupiedInSector(ctx, sectorID)
	if err != nil {
		return false, err
	}
	return taken >= int64(sector.MaxCapacity), nil
}

// Ratio is taken/total in hundredths, half-up.
func Ratio(taken, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return (taken*200 + total) / (2 * total)
}
