// Package memory is an in-process implementation of repository.TxStore.
// Transactions are serialized by a single mutex and applied to a copy of
// the state that replaces the live state only on success, which gives the
// same all-or-nothing behaviour as the MySQL store for one process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/repository"
)

type state struct {
	sectors       map[uint64]model.Sector
	spots         map[uint64]model.Spot
	sessions      map[uint64]model.Session
	nextSectorID  uint64
	nextSessionID uint64
}

func newState() *state {
	return &state{
		sectors:       map[uint64]model.Sector{},
		spots:         map[uint64]model.Spot{},
		sessions:      map[uint64]model.Session{},
		nextSectorID:  1,
		nextSessionID: 1,
	}
}

func (st *state) clone() *state {
	c := &state{
		sectors:       make(map[uint64]model.Sector, len(st.sectors)),
		spots:         make(map[uint64]model.Spot, len(st.spots)),
		sessions:      make(map[uint64]model.Session, len(st.sessions)),
		nextSectorID:  st.nextSectorID,
		nextSessionID: st.nextSessionID,
	}
	for k, v := range st.sectors {
		c.sectors[k] = v
	}
	for k, v := range st.spots {
		v.OccupiedBy = copyUint(v.OccupiedBy)
		c.spots[k] = v
	}
	for k, v := range st.sessions {
		c.sessions[k] = copySession(v)
	}
	return c
}

// Store is a mutex-guarded in-memory TxStore.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store { return &Store{st: newState()} }

var _ repository.TxStore = (*Store)(nil)

// WithinTx runs fn against a private copy of the state and publishes the
// copy only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &view{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) run(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.st})
}

// Snapshot returns copies of all spots and sessions, ordered by id.  It is
// meant for invariant checks in tests and diagnostics.
func (s *Store) Snapshot() ([]model.Spot, []model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spots := make([]model.Spot, 0, len(s.st.spots))
	for _, sp := range s.st.spots {
		sp.OccupiedBy = copyUint(sp.OccupiedBy)
		spots = append(spots, sp)
	}
	sort.Slice(spots, func(i, j int) bool { return spots[i].ID < spots[j].ID })
	sessions := make([]model.Session, 0, len(s.st.sessions))
	for _, se := range s.st.sessions {
		sessions = append(sessions, copySession(se))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return spots, sessions
}

// The methods below give Store the non-transactional half of the contract;
// each call is its own unit of work.

func (s *Store) ListSectors(ctx context.Context) (out []model.Sector, err error) {
	err = s.run(func(v *view) error { out, err = v.ListSectors(ctx); return err })
	return
}

func (s *Store) GetSector(ctx context.Context, id uint64) (out *model.Sector, err error) {
	err = s.run(func(v *view) error { out, err = v.GetSector(ctx, id); return err })
	return
}

func (s *Store) GetSectorByCode(ctx context.Context, code string) (out *model.Sector, err error) {
	err = s.run(func(v *view) error { out, err = v.GetSectorByCode(ctx, code); return err })
	return
}

func (s *Store) MinBasePrice(ctx context.Context) (cents int64, ok bool, err error) {
	err = s.run(func(v *view) error { cents, ok, err = v.MinBasePrice(ctx); return err })
	return
}

func (s *Store) UpsertSector(ctx context.Context, sec *model.Sector) error {
	return s.run(func(v *view) error { return v.UpsertSector(ctx, sec) })
}

func (s *Store) CountSpots(ctx context.Context) (n int64, err error) {
	err = s.run(func(v *view) error { n, err = v.CountSpots(ctx); return err })
	return
}

func (s *Store) CountOccupied(ctx context.Context) (n int64, err error) {
	err = s.run(func(v *view) error { n, err = v.CountOccupied(ctx); return err })
	return
}

func (s *Store) CountOccupiedInSector(ctx context.Context, sectorID uint64) (n int64, err error) {
	err = s.run(func(v *view) error { n, err = v.CountOccupiedInSector(ctx, sectorID); return err })
	return
}

func (s *Store) GetSpot(ctx context.Context, id uint64) (out *model.Spot, err error) {
	err = s.run(func(v *view) error { out, err = v.GetSpot(ctx, id); return err })
	return
}

func (s *Store) FirstFreeInSector(ctx context.Context, sectorID uint64) (out *model.Spot, err error) {
	err = s.run(func(v *view) error { out, err = v.FirstFreeInSector(ctx, sectorID); return err })
	return
}

func (s *Store) FindByCoords(ctx context.Context, lat, lng model.Coord) (out []model.Spot, err error) {
	err = s.run(func(v *view) error { out, err = v.FindByCoords(ctx, lat, lng); return err })
	return
}

func (s *Store) NearestInSector(ctx context.Context, sectorID uint64, lat, lng model.Coord) (out *model.Spot, err error) {
	err = s.run(func(v *view) error { out, err = v.NearestInSector(ctx, sectorID, lat, lng); return err })
	return
}

func (s *Store) Nearest(ctx context.Context, lat, lng model.Coord) (out *model.Spot, err error) {
	err = s.run(func(v *view) error { out, err = v.Nearest(ctx, lat, lng); return err })
	return
}

func (s *Store) TryOccupy(ctx context.Context, spotID, sessionID uint64) (ok bool, err error) {
	err = s.run(func(v *view) error { ok, err = v.TryOccupy(ctx, spotID, sessionID); return err })
	return
}

func (s *Store) TrySwapOccupant(ctx context.Context, spotID, expected, next uint64) (ok bool, err error) {
	err = s.run(func(v *view) error { ok, err = v.TrySwapOccupant(ctx, spotID, expected, next); return err })
	return
}

func (s *Store) ReleaseIfHeld(ctx context.Context, spotID, sessionID uint64) (ok bool, err error) {
	err = s.run(func(v *view) error { ok, err = v.ReleaseIfHeld(ctx, spotID, sessionID); return err })
	return
}

func (s *Store) ClearOccupant(ctx context.Context, spotID uint64) error {
	return s.run(func(v *view) error { return v.ClearOccupant(ctx, spotID) })
}

func (s *Store) UpsertSpot(ctx context.Context, sp model.Spot) error {
	return s.run(func(v *view) error { return v.UpsertSpot(ctx, sp) })
}

func (s *Store) CreateSession(ctx context.Context, se *model.Session) error {
	return s.run(func(v *view) error { return v.CreateSession(ctx, se) })
}

func (s *Store) UpdateSession(ctx context.Context, se *model.Session) error {
	return s.run(func(v *view) error { return v.UpdateSession(ctx, se) })
}

func (s *Store) DeleteSession(ctx context.Context, id uint64) error {
	return s.run(func(v *view) error { return v.DeleteSession(ctx, id) })
}

func (s *Store) GetSession(ctx context.Context, id uint64) (out *model.Session, err error) {
	err = s.run(func(v *view) error { out, err = v.GetSession(ctx, id); return err })
	return
}

func (s *Store) LatestOpenByPlate(ctx context.Context, plate string) (out *model.Session, err error) {
	err = s.run(func(v *view) error { out, err = v.LatestOpenByPlate(ctx, plate); return err })
	return
}

func (s *Store) CountOpenByPlate(ctx context.Context, plate string) (n int64, err error) {
	err = s.run(func(v *view) error { n, err = v.CountOpenByPlate(ctx, plate); return err })
	return
}

func (s *Store) SumChargedBetween(ctx context.Context, start, end time.Time, sectorCode string) (sum int64, err error) {
	err = s.run(func(v *view) error { sum, err = v.SumChargedBetween(ctx, start, end, sectorCode); return err })
	return
}
