package parking

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/repository"
)

// PlacementResult is the outcome of a placement attempt.
type PlacementResult int

const (
	// NoOp: nothing changed, either because the session already holds the
	// spot or because a free spot was lost to a concurrent claim.
	NoOp PlacementResult = iota
	Placed
	Preempted
	// Denied: the occupant could not be relocated.  No mutation survives.
	Denied
)

func (r PlacementResult) String() string {
	switch r {
	case NoOp:
		return "noop"
	case Placed:
		return "placed"
	case Preempted:
		return "preempted"
	case Denied:
		return "denied"
	}
	return fmt.Sprintf("PlacementResult(%d)", int(r))
}

// Resolver puts a session on a reported spot, relocating whoever is there.
// It must run on a store bound to the caller's transaction; a returned
// ErrSwapInvariant requires that transaction to roll back.
//
// On Placed and Preempted the requester is updated in memory only and the
// caller persists it.  A displaced occupant is persisted here.
type Resolver struct {
	store repository.Store
}

func NewResolver(store repository.Store) *Resolver { return &Resolver{store: store} }

func (r *Resolver) PlaceOrPreempt(ctx context.Context, s *model.Session, dest model.Spot) (PlacementResult, error) {
	if dest.HeldBy(s.ID) {
		return NoOp, nil
	}

	destSector, err := r.sectorOf(ctx, dest)
	if err != nil {
		return NoOp, err
	}

	var prev *model.Spot
	if s.SpotID != nil && *s.SpotID != dest.ID {
		prev, err = r.store.GetSpot(ctx, *s.SpotID)
		if errors.Is(err, repository.ErrNotFound) {
			prev = nil
		} else if err != nil {
			return NoOp, fmt.Errorf("load previous spot: %w", err)
		}
	}

	if dest.IsFree() {
		ok, err := r.store.TryOccupy(ctx, dest.ID, s.ID)
		if err != nil {
			return NoOp, err
		}
		if !ok {
			return NoOp, nil
		}
		if err := r.release(ctx, prev, s.ID); err != nil {
			return NoOp, err
		}
		attach(s, dest, destSector)
		return Placed, nil
	}

	occupantID := *dest.OccupiedBy
	alt, err := r.alternativeFor(ctx, dest, prev)
	if err != nil {
		return NoOp, err
	}
	if alt == nil {
		return Denied, nil
	}

	if prev != nil && alt.ID == prev.ID {
		// Double swap: requester S leaves X for Y, occupant T leaves Y for X.
		ok, err := r.store.TrySwapOccupant(ctx, prev.ID, s.ID, occupantID)
		if err != nil {
			return NoOp, err
		}
		if !ok {
			return Denied, nil
		}
		ok, err = r.store.TrySwapOccupant(ctx, dest.ID, occupantID, s.ID)
		if err != nil {
			return NoOp, err
		}
		if !ok {
			return NoOp, fmt.Errorf("swap spot %d from %d to %d: %w", dest.ID, occupantID, s.ID, ErrSwapInvariant)
		}
		attach(s, dest, destSector)
		if err := r.moveOccupant(ctx, occupantID, *prev); err != nil {
			return NoOp, err
		}
		return Preempted, nil
	}

	ok, err := r.store.TryOccupy(ctx, alt.ID, occupantID)
	if err != nil {
		return NoOp, err
	}
	if !ok {
		return Denied, nil
	}
	ok, err = r.store.TrySwapOccupant(ctx, dest.ID, occupantID, s.ID)
	if err != nil {
		return NoOp, err
	}
	if !ok {
		if err := r.store.ClearOccupant(ctx, alt.ID); err != nil {
			return NoOp, err
		}
		return Denied, nil
	}
	if err := r.release(ctx, prev, s.ID); err != nil {
		return NoOp, err
	}
	attach(s, dest, destSector)
	if err := r.moveOccupant(ctx, occupantID, *alt); err != nil {
		return NoOp, err
	}
	return Preempted, nil
}

// alternativeFor picks where the current occupant of dest goes: a free spot
// in dest's sector, else the requester's previous spot, else the first
// free spot of any other sector in id order.
func (r *Resolver) alternativeFor(ctx context.Context, dest model.Spot, prev *model.Spot) (*model.Spot, error) {
	spot, err := r.store.FirstFreeInSector(ctx, dest.SectorID)
	if err == nil {
		return spot, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if prev != nil {
		return prev, nil
	}
	sectors, err := r.store.ListSectors(ctx)
	if err != nil {
		return nil, err
	}
	for _, sector := range sectors {
		if sector.ID == dest.SectorID {
			continue
		}
		spot, err := r.store.FirstFreeInSector(ctx, sector.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return spot, nil
	}
	return nil, nil
}

func (r *Resolver) release(ctx context.Context, prev *model.Spot, sessionID uint64) error {
	if prev == nil {
		return nil
	}
	_, err := r.store.ReleaseIfHeld(ctx, prev.ID, sessionID)
	return err
}

// moveOccupant records the displaced session's new spot.  A dangling
// occupant id with no session row is left alone.
func (r *Resolver) moveOccupant(ctx context.Context, sessionID uint64, to model.Spot) error {
	t, err := r.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sector, err := r.sectorOf(ctx, to)
	if err != nil {
		return err
	}
	attach(t, to, sector)
	return r.store.UpdateSession(ctx, t)
}

func (r *Resolver) sectorOf(ctx context.Context, spot model.Spot) (*model.Sector, error) {
	sector, err := r.store.GetSector(ctx, spot.SectorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sector %d: %w", spot.SectorID, err)
	}
	return sector, nil
}

// attach points the session at spot.  Moving to another sector re-bases
// the price; a session without a base price takes the sector's.
func attach(s *model.Session, spot model.Spot, sector *model.Sector) {
	s.SpotID = &spot.ID
	if sector == nil {
		return
	}
	if s.SectorID == nil || *s.SectorID != sector.ID {
		id := sector.ID
		base := sector.BasePriceCents
		s.SectorID = &id
		s.BasePriceCents = &base
		return
	}
	if s.BasePriceCents == nil {
		base := sector.BasePriceCents
		s.BasePriceCents = &base
	}
}
