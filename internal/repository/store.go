package repository

import (
	"context"
	"time"

	"github.com/iliyamo/garage-parking/internal/model"
)

// SectorStore reads and writes the sector catalog.
type SectorStore interface {
	// ListSectors returns all sectors ordered by id.
	ListSectors(ctx context.Context) ([]model.Sector, error)
	GetSector(ctx context.Context, id uint64) (*model.Sector, error)
	GetSectorByCode(ctx context.Context, code string) (*model.Sector, error)
	// MinBasePrice returns the cheapest base price; ok is false when there
	// are no sectors.
	MinBasePrice(ctx context.Context) (cents int64, ok bool, err error)
	// UpsertSector inserts or updates a sector keyed by code and populates
	// its ID.
	UpsertSector(ctx context.Context, s *model.Sector) error
}

// SpotStore exposes spot queries and the conditional occupant updates.
// Every mutation of an occupant goes through a compare-and-set method
// that reports whether the row was changed.
type SpotStore interface {
	CountSpots(ctx context.Context) (int64, error)
	CountOccupied(ctx context.Context) (int64, error)
	CountOccupiedInSector(ctx context.Context, sectorID uint64) (int64, error)
	GetSpot(ctx context.Context, id uint64) (*model.Spot, error)
	// FirstFreeInSector returns the lowest-id free spot of the sector or
	// ErrNotFound.
	FirstFreeInSector(ctx context.Context, sectorID uint64) (*model.Spot, error)
	// FindByCoords returns spots with exactly these coordinates ordered by id.
	FindByCoords(ctx context.Context, lat, lng model.Coord) ([]model.Spot, error)
	NearestInSector(ctx context.Context, sectorID uint64, lat, lng model.Coord) (*model.Spot, error)
	Nearest(ctx context.Context, lat, lng model.Coord) (*model.Spot, error)

	// TryOccupy sets the occupant only when the spot is free.
	TryOccupy(ctx context.Context, spotID, sessionID uint64) (bool, error)
	// TrySwapOccupant replaces the occupant only when it equals expected.
	TrySwapOccupant(ctx context.Context, spotID, expected, next uint64) (bool, error)
	// ReleaseIfHeld clears the occupant only when it equals sessionID.
	ReleaseIfHeld(ctx context.Context, spotID, sessionID uint64) (bool, error)
	// ClearOccupant unconditionally frees the spot.  Only used to undo a
	// reservation made earlier in the same transaction.
	ClearOccupant(ctx context.Context, spotID uint64) error

	// UpsertSpot inserts or updates a spot keyed by id.  The occupant is
	// never touched.
	UpsertSpot(ctx context.Context, s model.Spot) error
}

// SessionStore persists vehicle sessions.
type SessionStore interface {
	// CreateSession inserts an open session and populates its ID.  It
	// returns ErrDuplicateOpenSession when the plate already has one.
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, id uint64) error
	GetSession(ctx context.Context, id uint64) (*model.Session, error)
	// LatestOpenByPlate returns the most recent open session of the plate
	// or ErrNotFound.
	LatestOpenByPlate(ctx context.Context, plate string) (*model.Session, error)
	CountOpenByPlate(ctx context.Context, plate string) (int64, error)
	// SumChargedBetween sums charged amounts of sessions whose exit time
	// falls in [start, end).  An empty sectorCode disables the filter.
	SumChargedBetween(ctx context.Context, start, end time.Time, sectorCode string) (int64, error)
}

// Store is the full persistence contract of the parking core.
type Store interface {
	SectorStore
	SpotStore
	SessionStore
}

// TxStore is a Store able to run a unit of work atomically.  Every
// mutation performed through the Store handed to fn is committed when fn
// returns nil and rolled back otherwise.
type TxStore interface {
	Store
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
