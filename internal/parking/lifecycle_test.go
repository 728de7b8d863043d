package parking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/queue"
	"github.com/iliyamo/garage-parking/internal/repository"
	"github.com/iliyamo/garage-parking/internal/repository/memory"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var t0 = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

type sectorSpec struct {
	code     string
	price    int64
	capacity int
	spots    []uint64
}

// newGarage seeds a memory store.  Spot n sits at (n, n) in fixed-point
// units so coordinates identify spots exactly.
func newGarage(t *testing.T, sectors ...sectorSpec) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	for _, spec := range sectors {
		sec := model.Sector{Code: spec.code, BasePriceCents: spec.price, MaxCapacity: spec.capacity, DurationLimitMinutes: 240}
		require.NoError(t, st.UpsertSector(ctx, &sec))
		for _, id := range spec.spots {
			require.NoError(t, st.UpsertSpot(ctx, model.Spot{ID: id, SectorID: sec.ID, Lat: model.Coord(id), Lng: model.Coord(id)}))
		}
	}
	return st
}

func twoSectors(t *testing.T) *memory.Store {
	return newGarage(t,
		sectorSpec{code: "A", price: 1000, capacity: 2, spots: []uint64{1, 2}},
		sectorSpec{code: "B", price: 2000, capacity: 2, spots: []uint64{3, 4}},
	)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.SessionClosedEvent
	err    error
}

func (p *recordingPublisher) PublishSessionClosed(_ context.Context, ev queue.SessionClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// hookStore lets a test decorate the store view handed to each transaction.
type hookStore struct {
	*memory.Store
	wrap func(repository.Store) repository.Store
}

func (h *hookStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	return h.Store.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		return fn(ctx, h.wrap(s))
	})
}

// racingStore loses the first reservation to a phantom writer.
type racingStore struct {
	repository.Store
	raced bool
}

func (r *racingStore) TryOccupy(ctx context.Context, spotID, sessionID uint64) (bool, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.Store.TryOccupy(ctx, spotID, 9999); err != nil {
			return false, err
		}
		return false, nil
	}
	return r.Store.TryOccupy(ctx, spotID, sessionID)
}

// secondSwapFails lets the first occupant swap through and fails the next.
type secondSwapFails struct {
	repository.Store
	swaps int
}

func (f *secondSwapFails) TrySwapOccupant(ctx context.Context, spotID, expected, next uint64) (bool, error) {
	f.swaps++
	if f.swaps == 2 {
		return false, nil
	}
	return f.Store.TrySwapOccupant(ctx, spotID, expected, next)
}

func enter(t *testing.T, svc *Service, plate string) *model.Session {
	t.Helper()
	s, err := svc.HandleEntry(context.Background(), EntryEvent{LicensePlate: plate, EntryTime: t0})
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func park(t *testing.T, svc *Service, plate string, spotID uint64) PlacementResult {
	t.Helper()
	res, err := svc.HandleParked(context.Background(), ParkedEvent{LicensePlate: plate, Lat: model.Coord(spotID), Lng: model.Coord(spotID)})
	require.NoError(t, err)
	return res
}

func openSession(t *testing.T, st *memory.Store, plate string) *model.Session {
	t.Helper()
	s, err := st.LatestOpenByPlate(context.Background(), plate)
	require.NoError(t, err)
	return s
}

// assertConsistent checks that occupants and session spot references
// agree in both directions.
func assertConsistent(t *testing.T, st *memory.Store) {
	t.Helper()
	spots, sessions := st.Snapshot()
	byID := make(map[uint64]model.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}
	for _, sp := range spots {
		if sp.OccupiedBy == nil {
			continue
		}
		s, ok := byID[*sp.OccupiedBy]
		if assert.True(t, ok, "spot %d held by unknown session %d", sp.ID, *sp.OccupiedBy) {
			assert.True(t, s.IsOpen(), "spot %d held by closed session %d", sp.ID, s.ID)
			if assert.NotNil(t, s.SpotID, "session %d has no spot", s.ID) {
				assert.Equal(t, sp.ID, *s.SpotID)
			}
		}
	}
	held := make(map[uint64]uint64)
	for _, s := range sessions {
		if !s.IsOpen() || s.SpotID == nil {
			continue
		}
		if other, dup := held[*s.SpotID]; dup {
			t.Errorf("spot %d referenced by sessions %d and %d", *s.SpotID, other, s.ID)
		}
		held[*s.SpotID] = s.ID
	}
}

func spotOf(t *testing.T, st *memory.Store, id uint64) model.Spot {
	t.Helper()
	sp, err := st.GetSpot(context.Background(), id)
	require.NoError(t, err)
	return *sp
}

func TestEntryReservesLowestFreeSpot(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)

	s := enter(t, svc, "AAA0001")
	require.NotNil(t, s.SpotID)
	assert.Equal(t, uint64(1), *s.SpotID)
	assert.Equal(t, uint64(1), *s.SectorID)
	assert.Equal(t, int64(1000), *s.BasePriceCents)
	assert.Equal(t, FactorLow, s.PriceFactor, "empty garage prices low")
	assert.True(t, spotOf(t, st, 1).HeldBy(s.ID))
	assertConsistent(t, st)
}

func TestEntryStampsFactorFromOccupancy(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)

	// Each entry sees the spots taken before it: 0, 1, 2 and 3 of 4.
	assert.Equal(t, FactorLow, enter(t, svc, "P1").PriceFactor)
	assert.Equal(t, FactorStandard, enter(t, svc, "P2").PriceFactor)
	assert.Equal(t, FactorStandard, enter(t, svc, "P3").PriceFactor)
	assert.Equal(t, FactorBusy, enter(t, svc, "P4").PriceFactor)
}

func TestEntryIgnoresPlateWithOpenSession(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	first := enter(t, svc, "DUP0001")

	again, err := svc.HandleEntry(context.Background(), EntryEvent{LicensePlate: "DUP0001", EntryTime: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Nil(t, again)

	_, sessions := st.Snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, first.ID, sessions[0].ID)
}

func TestEntrySkipsFullSector(t *testing.T) {
	st := newGarage(t,
		sectorSpec{code: "A", price: 1000, capacity: 1, spots: []uint64{1, 2}},
		sectorSpec{code: "B", price: 2000, capacity: 5, spots: []uint64{3}},
	)
	svc := NewService(st, nil, nil)

	enter(t, svc, "P1")
	second := enter(t, svc, "P2")
	assert.Equal(t, uint64(3), *second.SpotID)
	assert.Equal(t, int64(2000), *second.BasePriceCents)
	assert.True(t, spotOf(t, st, 2).IsFree(), "capacity caps sector A even with a free spot")
}

func TestEntryGarageFullDiscardsSession(t *testing.T) {
	st := newGarage(t, sectorSpec{code: "A", price: 1000, capacity: 1, spots: []uint64{1}})
	svc := NewService(st, nil, nil)
	enter(t, svc, "P1")

	s, err := svc.HandleEntry(context.Background(), EntryEvent{LicensePlate: "P2", EntryTime: t0})
	assert.ErrorIs(t, err, ErrGarageFull)
	assert.Nil(t, s)

	_, err = st.LatestOpenByPlate(context.Background(), "P2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assertConsistent(t, st)
}

func TestEntryWithEmptyCatalog(t *testing.T) {
	svc := NewService(memory.New(), nil, nil)
	_, err := svc.HandleEntry(context.Background(), EntryEvent{LicensePlate: "P1", EntryTime: t0})
	assert.ErrorIs(t, err, ErrGarageFull)
}

func TestConcurrentEntriesOnLastSpot(t *testing.T) {
	st := newGarage(t, sectorSpec{code: "A", price: 1000, capacity: 1, spots: []uint64{1}})
	svc := NewService(st, nil, nil)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		opened   int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := svc.HandleEntry(context.Background(), EntryEvent{LicensePlate: fmt.Sprintf("CAR%04d", i), EntryTime: t0})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && s != nil:
				opened++
			case errors.Is(err, ErrGarageFull):
				rejected++
			default:
				t.Errorf("unexpected outcome: %v %v", s, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, n-1, rejected)
	_, sessions := st.Snapshot()
	assert.Len(t, sessions, 1)
	assertConsistent(t, st)
}

func TestEntryRetriesAfterLostReservation(t *testing.T) {
	st := twoSectors(t)
	racer := &racingStore{}
	hooked := &hookStore{Store: st, wrap: func(s repository.Store) repository.Store {
		racer.Store = s
		return racer
	}}
	svc := NewService(hooked, nil, nil)

	s := enter(t, svc, "P1")
	assert.True(t, racer.raced)
	assert.Equal(t, uint64(2), *s.SpotID, "lost spot 1, retried onto spot 2")
	assert.True(t, spotOf(t, st, 2).HeldBy(s.ID))
}

func TestParkedOnHeldSpotIsNoOp(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	s := enter(t, svc, "P1")
	spotsBefore, sessionsBefore := st.Snapshot()

	assert.Equal(t, NoOp, park(t, svc, "P1", *s.SpotID))
	assert.Equal(t, NoOp, park(t, svc, "P1", *s.SpotID))

	spotsAfter, sessionsAfter := st.Snapshot()
	assert.Equal(t, spotsBefore, spotsAfter)
	assert.Equal(t, sessionsBefore, sessionsAfter)
}

func TestParkedUnknownPlateIsNoOp(t *testing.T) {
	svc := NewService(twoSectors(t), nil, nil)
	assert.Equal(t, NoOp, park(t, svc, "NOBODY", 1))
}

func TestParkedMovesToFreeSpotAcrossSectors(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	s := enter(t, svc, "P1")

	assert.Equal(t, Placed, park(t, svc, "P1", 3))

	got := openSession(t, st, "P1")
	assert.Equal(t, uint64(3), *got.SpotID)
	assert.Equal(t, uint64(2), *got.SectorID)
	assert.Equal(t, int64(2000), *got.BasePriceCents, "sector change re-bases the price")
	assert.Equal(t, s.PriceFactor, got.PriceFactor)
	assert.True(t, spotOf(t, st, 1).IsFree())
	assertConsistent(t, st)
}

func TestParkedNearestSpotWhenNoExactMatch(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	enter(t, svc, "P1")

	// (2,3) is nearest to spot 2 within sector A even though spot 3 is
	// equally close globally.
	res, err := svc.HandleParked(context.Background(), ParkedEvent{LicensePlate: "P1", Lat: 2, Lng: 3})
	require.NoError(t, err)
	assert.Equal(t, Placed, res)
	assert.Equal(t, uint64(2), *openSession(t, st, "P1").SpotID)
	assertConsistent(t, st)
}

func TestParkedPreemptsOntoFreeSpotInSameSector(t *testing.T) {
	st := newGarage(t,
		sectorSpec{code: "A", price: 1000, capacity: 3, spots: []uint64{1, 2, 3}},
		sectorSpec{code: "B", price: 2000, capacity: 1, spots: []uint64{4}},
	)
	svc := NewService(st, nil, nil)
	occupant := enter(t, svc, "T")  // spot 1
	requester := enter(t, svc, "S") // spot 2

	// Move S to B first so its previous spot is outside A.
	assert.Equal(t, Placed, park(t, svc, "S", 4))
	assert.Equal(t, Preempted, park(t, svc, "S", 1))

	s := openSession(t, st, "S")
	tt := openSession(t, st, "T")
	assert.Equal(t, requester.ID, s.ID)
	assert.Equal(t, uint64(1), *s.SpotID)
	assert.Equal(t, int64(1000), *s.BasePriceCents)
	assert.Equal(t, occupant.ID, tt.ID)
	assert.Equal(t, uint64(2), *tt.SpotID, "T takes the lowest free spot in A")
	assert.True(t, spotOf(t, st, 4).IsFree(), "S released its previous spot")
	assertConsistent(t, st)
}

func TestParkedDoubleSwap(t *testing.T) {
	st := newGarage(t, sectorSpec{code: "A", price: 1000, capacity: 2, spots: []uint64{1, 2}})
	svc := NewService(st, nil, nil)
	requester := enter(t, svc, "S") // spot 1
	occupant := enter(t, svc, "T")  // spot 2

	assert.Equal(t, Preempted, park(t, svc, "S", 2))

	assert.True(t, spotOf(t, st, 2).HeldBy(requester.ID))
	assert.True(t, spotOf(t, st, 1).HeldBy(occupant.ID))
	assert.Equal(t, uint64(2), *openSession(t, st, "S").SpotID)
	assert.Equal(t, uint64(1), *openSession(t, st, "T").SpotID)
	assertConsistent(t, st)
}

func TestParkedDoubleSwapRollsBackWhenSecondLegFails(t *testing.T) {
	st := newGarage(t, sectorSpec{code: "A", price: 1000, capacity: 2, spots: []uint64{1, 2}})
	svc := NewService(st, nil, nil)
	enter(t, svc, "S")
	enter(t, svc, "T")
	spotsBefore, sessionsBefore := st.Snapshot()

	flaky := NewService(&hookStore{Store: st, wrap: func(s repository.Store) repository.Store {
		return &secondSwapFails{Store: s}
	}}, nil, nil)
	res, err := flaky.HandleParked(context.Background(), ParkedEvent{LicensePlate: "S", Lat: 2, Lng: 2})
	assert.ErrorIs(t, err, ErrSwapInvariant)
	assert.Equal(t, NoOp, res)

	spotsAfter, sessionsAfter := st.Snapshot()
	assert.Equal(t, spotsBefore, spotsAfter)
	assert.Equal(t, sessionsBefore, sessionsAfter)
}

func TestParkedRelocatesOccupantToOtherSector(t *testing.T) {
	st := twoSectors(t)
	ctx := context.Background()
	svc := NewService(st, nil, nil)
	enter(t, svc, "T1") // spot 1
	enter(t, svc, "T2") // spot 2
	// S has an open session but no spot yet.
	require.NoError(t, st.CreateSession(ctx, &model.Session{LicensePlate: "S", EntryTime: t0, PriceFactor: 100}))

	assert.Equal(t, Preempted, park(t, svc, "S", 1))

	s := openSession(t, st, "S")
	t1 := openSession(t, st, "T1")
	assert.Equal(t, uint64(1), *s.SpotID)
	assert.Equal(t, int64(1000), *s.BasePriceCents, "first sector sets the base price")
	assert.Equal(t, uint64(3), *t1.SpotID)
	assert.Equal(t, uint64(2), *t1.SectorID)
	assert.Equal(t, int64(2000), *t1.BasePriceCents)
	assertConsistent(t, st)
}

func TestParkedDeniedLeavesStateUntouched(t *testing.T) {
	st := newGarage(t, sectorSpec{code: "A", price: 1000, capacity: 2, spots: []uint64{1, 2}})
	ctx := context.Background()
	svc := NewService(st, nil, nil)
	enter(t, svc, "T1")
	enter(t, svc, "T2")
	require.NoError(t, st.CreateSession(ctx, &model.Session{LicensePlate: "S", EntryTime: t0, PriceFactor: 100}))
	spotsBefore, sessionsBefore := st.Snapshot()

	assert.Equal(t, Denied, park(t, svc, "S", 1))

	spotsAfter, sessionsAfter := st.Snapshot()
	assert.Equal(t, spotsBefore, spotsAfter)
	assert.Equal(t, sessionsBefore, sessionsAfter)
}

func TestExitChargesReleasesAndPublishes(t *testing.T) {
	st := twoSectors(t)
	pub := &recordingPublisher{}
	svc := NewService(st, pub, nil)
	s := enter(t, svc, "P1")

	closed, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(2*time.Hour + 10*time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, int64(2700), *closed.ChargedAmountCents, "3 started hours at 10.00 × 0.90")
	assert.Nil(t, closed.SpotID)
	assert.True(t, spotOf(t, st, *s.SpotID).IsFree())

	_, err = st.LatestOpenByPlate(context.Background(), "P1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, s.ID, ev.SessionID)
	assert.Equal(t, "A", ev.SectorCode)
	assert.Equal(t, uint64(1), ev.SpotID)
	assert.Equal(t, int64(2700), ev.ChargedAmountCents)
	assertConsistent(t, st)
}

func TestExitWithinGracePeriodIsFree(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	enter(t, svc, "P1")

	closed, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), *closed.ChargedAmountCents)
}

func TestExitWithoutBasePriceUsesCheapestSector(t *testing.T) {
	st := newGarage(t,
		sectorSpec{code: "A", price: 1500, capacity: 1, spots: []uint64{1}},
		sectorSpec{code: "B", price: 800, capacity: 1, spots: []uint64{2}},
	)
	require.NoError(t, st.CreateSession(context.Background(), &model.Session{LicensePlate: "P1", EntryTime: t0, PriceFactor: 100}))
	svc := NewService(st, nil, nil)

	closed, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(800), *closed.BasePriceCents)
	assert.Equal(t, int64(1600), *closed.ChargedAmountCents)
}

func TestExitUnknownPlateIsIgnored(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(twoSectors(t), pub, nil)
	closed, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "GHOST", ExitTime: t0})
	require.NoError(t, err)
	assert.Nil(t, closed)
	assert.Empty(t, pub.events)
}

func TestExitSurvivesPublishFailure(t *testing.T) {
	st := twoSectors(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(st, pub, nil)
	enter(t, svc, "P1")

	closed, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotNil(t, closed.ExitTime)
}

func TestPlateCanReenterAfterExit(t *testing.T) {
	st := twoSectors(t)
	svc := NewService(st, nil, nil)
	first := enter(t, svc, "P1")
	_, err := svc.HandleExit(context.Background(), ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(time.Hour)})
	require.NoError(t, err)

	second := enter(t, svc, "P1")
	assert.NotEqual(t, first.ID, second.ID)
	assertConsistent(t, st)
}

func TestDispatchRoutesEvents(t *testing.T) {
	st := twoSectors(t)
	metrics, err := NewMetrics()
	require.NoError(t, err)
	svc := NewService(st, nil, metrics)
	ctx := context.Background()

	require.NoError(t, svc.Dispatch(ctx, EntryEvent{LicensePlate: "P1", EntryTime: t0}))
	require.NoError(t, svc.Dispatch(ctx, ParkedEvent{LicensePlate: "P1", Lat: 4, Lng: 4}))
	assert.Equal(t, uint64(4), *openSession(t, st, "P1").SpotID)
	require.NoError(t, svc.Dispatch(ctx, ExitEvent{LicensePlate: "P1", ExitTime: t0.Add(time.Hour)}))

	_, sessions := st.Snapshot()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].IsOpen())
	assert.Equal(t, int64(1800), *sessions[0].ChargedAmountCents, "1h at 20.00 × 0.90")
}
