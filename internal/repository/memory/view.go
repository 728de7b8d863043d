package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/repository"
)

// view implements repository.Store over a state the caller already owns.
type view struct {
	st *state
}

var _ repository.Store = (*view)(nil)

func copyUint(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copySession(s model.Session) model.Session {
	s.SectorID = copyUint(s.SectorID)
	s.SpotID = copyUint(s.SpotID)
	s.BasePriceCents = copyInt(s.BasePriceCents)
	s.ChargedAmountCents = copyInt(s.ChargedAmountCents)
	if s.ExitTime != nil {
		t := *s.ExitTime
		s.ExitTime = &t
	}
	return s
}

func copySpot(s model.Spot) *model.Spot {
	s.OccupiedBy = copyUint(s.OccupiedBy)
	return &s
}

func (v *view) sortedSpots(keep func(model.Spot) bool) []model.Spot {
	out := make([]model.Spot, 0, len(v.st.spots))
	for _, sp := range v.st.spots {
		if keep == nil || keep(sp) {
			out = append(out, *copySpot(sp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) ListSectors(_ context.Context) ([]model.Sector, error) {
	out := make([]model.Sector, 0, len(v.st.sectors))
	for _, s := range v.st.sectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) GetSector(_ context.Context, id uint64) (*model.Sector, error) {
	s, ok := v.st.sectors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (v *view) GetSectorByCode(_ context.Context, code string) (*model.Sector, error) {
	for _, s := range v.st.sectors {
		if s.Code == code {
			c := s
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v *view) MinBasePrice(_ context.Context) (int64, bool, error) {
	var (
		lowest int64
		ok  bool
	)
	for _, s := range v.st.sectors {
		if !ok || s.BasePriceCents < lowest {
			lowest, ok = s.BasePriceCents, true
		}
	}
	return lowest, ok, nil
}

func (v *view) UpsertSector(ctx context.Context, s *model.Sector) error {
	if existing, err := v.GetSectorByCode(ctx, s.Code); err == nil {
		s.ID = existing.ID
	} else {
		s.ID = v.st.nextSectorID
		v.st.nextSectorID++
	}
	s.UpdatedAt = time.Now().UTC()
	v.st.sectors[s.ID] = *s
	return nil
}

func (v *view) CountSpots(_ context.Context) (int64, error) {
	return int64(len(v.st.spots)), nil
}

func (v *view) CountOccupied(_ context.Context) (int64, error) {
	var n int64
	for _, sp := range v.st.spots {
		if !sp.IsFree() {
			n++
		}
	}
	return n, nil
}

func (v *view) CountOccupiedInSector(_ context.Context, sectorID uint64) (int64, error) {
	var n int64
	for _, sp := range v.st.spots {
		if sp.SectorID == sectorID && !sp.IsFree() {
			n++
		}
	}
	return n, nil
}

func (v *view) GetSpot(_ context.Context, id uint64) (*model.Spot, error) {
	sp, ok := v.st.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySpot(sp), nil
}

func (v *view) FirstFreeInSector(_ context.Context, sectorID uint64) (*model.Spot, error) {
	free := v.sortedSpots(func(sp model.Spot) bool { return sp.SectorID == sectorID && sp.IsFree() })
	if len(free) == 0 {
		return nil, repository.ErrNotFound
	}
	return &free[0], nil
}

func (v *view) FindByCoords(_ context.Context, lat, lng model.Coord) ([]model.Spot, error) {
	return v.sortedSpots(func(sp model.Spot) bool { return sp.Lat == lat && sp.Lng == lng }), nil
}

func distance(sp model.Spot, lat, lng model.Coord) float64 {
	dy := float64(sp.Lat - lat)
	dx := float64(sp.Lng - lng)
	return dy*dy + dx*dx
}

func (v *view) nearest(keep func(model.Spot) bool, lat, lng model.Coord) (*model.Spot, error) {
	var best *model.Spot
	for _, sp := range v.sortedSpots(keep) {
		if best == nil || distance(sp, lat, lng) < distance(*best, lat, lng) {
			c := sp
			best = &c
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (v *view) NearestInSector(_ context.Context, sectorID uint64, lat, lng model.Coord) (*model.Spot, error) {
	return v.nearest(func(sp model.Spot) bool { return sp.SectorID == sectorID }, lat, lng)
}

func (v *view) Nearest(_ context.Context, lat, lng model.Coord) (*model.Spot, error) {
	return v.nearest(nil, lat, lng)
}

// cas sets the occupant of spotID to next when the current occupant equals
// expected (nil meaning free).
func (v *view) cas(spotID uint64, expected, next *uint64) bool {
	sp, ok := v.st.spots[spotID]
	if !ok {
		return false
	}
	switch {
	case expected == nil && sp.OccupiedBy != nil:
		return false
	case expected != nil && (sp.OccupiedBy == nil || *sp.OccupiedBy != *expected):
		return false
	}
	sp.OccupiedBy = copyUint(next)
	v.st.spots[spotID] = sp
	return true
}

func (v *view) TryOccupy(_ context.Context, spotID, sessionID uint64) (bool, error) {
	return v.cas(spotID, nil, &sessionID), nil
}

func (v *view) TrySwapOccupant(_ context.Context, spotID, expected, next uint64) (bool, error) {
	if expected == next {
		// Mirrors MySQL, which reports no affected row for a no-op update.
		return false, nil
	}
	return v.cas(spotID, &expected, &next), nil
}

func (v *view) ReleaseIfHeld(_ context.Context, spotID, sessionID uint64) (bool, error) {
	return v.cas(spotID, &sessionID, nil), nil
}

func (v *view) ClearOccupant(_ context.Context, spotID uint64) error {
	if sp, ok := v.st.spots[spotID]; ok {
		sp.OccupiedBy = nil
		v.st.spots[spotID] = sp
	}
	return nil
}

func (v *view) UpsertSpot(_ context.Context, s model.Spot) error {
	if existing, ok := v.st.spots[s.ID]; ok {
		s.OccupiedBy = existing.OccupiedBy
	} else {
		s.OccupiedBy = nil
	}
	v.st.spots[s.ID] = s
	return nil
}

func (v *view) CreateSession(ctx context.Context, s *model.Session) error {
	if n, _ := v.CountOpenByPlate(ctx, s.LicensePlate); n > 0 && s.IsOpen() {
		return repository.ErrDuplicateOpenSession
	}
	s.ID = v.st.nextSessionID
	v.st.nextSessionID++
	s.EntryTime = s.EntryTime.UTC()
	v.st.sessions[s.ID] = copySession(*s)
	return nil
}

func (v *view) UpdateSession(_ context.Context, s *model.Session) error {
	cur, ok := v.st.sessions[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := copySession(*s)
	next.LicensePlate = cur.LicensePlate
	next.EntryTime = cur.EntryTime
	next.PriceFactor = cur.PriceFactor
	v.st.sessions[s.ID] = next
	return nil
}

func (v *view) DeleteSession(_ context.Context, id uint64) error {
	delete(v.st.sessions, id)
	return nil
}

func (v *view) GetSession(_ context.Context, id uint64) (*model.Session, error) {
	s, ok := v.st.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := copySession(s)
	return &c, nil
}

func (v *view) LatestOpenByPlate(_ context.Context, plate string) (*model.Session, error) {
	var best *model.Session
	for _, s := range v.st.sessions {
		if s.LicensePlate != plate || !s.IsOpen() {
			continue
		}
		if best == nil || s.ID > best.ID {
			c := copySession(s)
			best = &c
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (v *view) CountOpenByPlate(_ context.Context, plate string) (int64, error) {
	var n int64
	for _, s := range v.st.sessions {
		if s.LicensePlate == plate && s.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (v *view) SumChargedBetween(_ context.Context, start, end time.Time, sectorCode string) (int64, error) {
	var sum int64
	for _, s := range v.st.sessions {
		if s.ExitTime == nil || s.ChargedAmountCents == nil {
			continue
		}
		if s.ExitTime.Before(start) || !s.ExitTime.Before(end) {
			continue
		}
		if sectorCode != "" {
			if s.SectorID == nil {
				continue
			}
			sec, ok := v.st.sectors[*s.SectorID]
			if !ok || sec.Code != sectorCode {
				continue
			}
		}
		sum += *s.ChargedAmountCents
	}
	return sum, nil
}
