package parking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/queue"
	"github.com/iliyamo/garage-parking/internal/repository"
)

var tracer = otel.Tracer(meterName)

// ClosedPublisher receives a notification for every committed exit.
type ClosedPublisher interface {
	PublishSessionClosed(ctx context.Context, ev queue.SessionClosedEvent) error
}

// Service runs the session lifecycle.  Every handler executes in its own
// store transaction so a failed step leaves no partial state behind.
type Service struct {
	store     repository.TxStore
	publisher ClosedPublisher
	metrics   *Metrics

	// MaxAttempts caps reservation retries per sector; zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

// NewService wires the lifecycle.  publisher and metrics may be nil.
func NewService(store repository.TxStore, publisher ClosedPublisher, metrics *Metrics) *Service {
	return &Service{store: store, publisher: publisher, metrics: metrics}
}

// Dispatch routes an event to its handler and drops the handler's result.
func (s *Service) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case EntryEvent:
		_, err := s.HandleEntry(ctx, e)
		return err
	case ParkedEvent:
		_, err := s.HandleParked(ctx, e)
		return err
	case ExitEvent:
		_, err := s.HandleExit(ctx, e)
		return err
	}
	return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// HandleEntry opens a session and reserves a spot for it.  A plate that
// already has an open session is ignored and (nil, nil) is returned.  When
// no spot is available the session is discarded and ErrGarageFull is
// returned.
func (s *Service) HandleEntry(ctx context.Context, ev EntryEvent) (*model.Session, error) {
	ctx, span := startSpan(ctx, "parking.entry", ev.LicensePlate)
	defer span.End()

	var opened *model.Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.LatestOpenByPlate(ctx, ev.LicensePlate); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup open session: %w", err)
		}

		ratio, err := NewOccupancy(st).GlobalRatio(ctx)
		if err != nil {
			return fmt.Errorf("occupancy ratio: %w", err)
		}
		sess := &model.Session{
			LicensePlate: ev.LicensePlate,
			EntryTime:    ev.EntryTime.UTC(),
			PriceFactor:  DynamicFactor(ratio),
		}
		if err := st.CreateSession(ctx, sess); err != nil {
			if errors.Is(err, repository.ErrDuplicateOpenSession) {
				return nil
			}
			return fmt.Errorf("create session: %w", err)
		}

		alloc, err := NewAllocator(st, s.MaxAttempts).Allocate(ctx, sess.ID)
		if errors.Is(err, ErrNoAllocation) {
			// Rolling back discards the session row created above.
			return ErrGarageFull
		}
		if err != nil {
			return err
		}
		attach(sess, alloc.Spot, &alloc.Sector)
		if err := st.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		opened = sess
		return nil
	})

	switch {
	case errors.Is(err, ErrGarageFull):
		s.metrics.entry(ctx, "full")
		logging.Info(ctx).Str("plate", ev.LicensePlate).Msg("entry.full")
		return nil, ErrGarageFull
	case err != nil:
		recordError(span, err)
		return nil, err
	case opened == nil:
		s.metrics.entry(ctx, "duplicate")
		logging.Info(ctx).Str("plate", ev.LicensePlate).Msg("entry.ignored")
		return nil, nil
	}

	s.metrics.entry(ctx, "reserved")
	logging.Info(ctx).
		Str("plate", opened.LicensePlate).
		Uint64("session_id", opened.ID).
		Uint64("spot_id", *opened.SpotID).
		Int64("price_factor", opened.PriceFactor).
		Msg("entry.reserved")
	return opened, nil
}

// HandleParked moves the plate's open session onto the reported spot,
// displacing the current occupant when possible.  Events for unknown
// plates or coordinates without any spot yield NoOp.
func (s *Service) HandleParked(ctx context.Context, ev ParkedEvent) (PlacementResult, error) {
	ctx, span := startSpan(ctx, "parking.parked", ev.LicensePlate)
	defer span.End()

	result := NoOp
	var sessionID, spotID uint64
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		result = NoOp
		sess, err := st.LatestOpenByPlate(ctx, ev.LicensePlate)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup open session: %w", err)
		}
		dest, err := destination(ctx, st, sess, ev.Lat, ev.Lng)
		if err != nil {
			return err
		}
		if dest == nil {
			return nil
		}
		sessionID, spotID = sess.ID, dest.ID

		result, err = NewResolver(st).PlaceOrPreempt(ctx, sess, *dest)
		if err != nil {
			return err
		}
		if result == Placed || result == Preempted {
			if err := st.UpdateSession(ctx, sess); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		if errors.Is(err, ErrSwapInvariant) {
			logging.Error(ctx).Err(err).Str("plate", ev.LicensePlate).Uint64("spot_id", spotID).Msg("parked.swap_invariant")
		}
		return NoOp, err
	}

	s.metrics.placement(ctx, result)
	span.SetAttributes(attribute.String("parking.result", result.String()))
	logAt := logging.Info
	if result == Denied {
		logAt = logging.Warn
	}
	logAt(ctx).Str("plate", ev.LicensePlate).
		Uint64("session_id", sessionID).
		Uint64("spot_id", spotID).
		Str("result", result.String()).
		Msg("parked." + result.String())
	return result, nil
}

// destination resolves reported coordinates to a spot: an exact match
// (preferring one the session already holds), else the nearest spot in the
// session's sector, else the nearest spot anywhere.
func destination(ctx context.Context, st repository.Store, sess *model.Session, lat, lng model.Coord) (*model.Spot, error) {
	exact, err := st.FindByCoords(ctx, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("find by coords: %w", err)
	}
	if len(exact) > 0 {
		for i := range exact {
			if exact[i].HeldBy(sess.ID) {
				return &exact[i], nil
			}
		}
		return &exact[0], nil
	}

	if sess.SectorID != nil {
		spot, err := st.NearestInSector(ctx, *sess.SectorID, lat, lng)
		if err == nil {
			return spot, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("nearest in sector: %w", err)
		}
	}

	spot, err := st.Nearest(ctx, lat, lng)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nearest spot: %w", err)
	}
	return spot, nil
}

// HandleExit closes the plate's open session, charges it and frees its
// spot.  The closed session is returned; (nil, nil) means there was
// nothing to close.
func (s *Service) HandleExit(ctx context.Context, ev ExitEvent) (*model.Session, error) {
	ctx, span := startSpan(ctx, "parking.exit", ev.LicensePlate)
	defer span.End()

	var (
		closed     *model.Session
		sectorCode string
		spotID     uint64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		sess, err := st.LatestOpenByPlate(ctx, ev.LicensePlate)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup open session: %w", err)
		}

		exit := ev.ExitTime.UTC()
		sess.ExitTime = &exit
		if sess.BasePriceCents == nil {
			cents, _, err := st.MinBasePrice(ctx)
			if err != nil {
				return fmt.Errorf("min base price: %w", err)
			}
			sess.BasePriceCents = &cents
		}
		charge := Charge(*sess.BasePriceCents, sess.PriceFactor, sess.EntryTime, exit)
		sess.ChargedAmountCents = &charge

		var sector *model.Sector
		if sess.SectorID != nil {
			sector, err = st.GetSector(ctx, *sess.SectorID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("load sector: %w", err)
			}
		}
		if sector != nil {
			sectorCode = sector.Code
			stay := int(exit.Sub(sess.EntryTime) / time.Minute)
			if sector.DurationLimitMinutes > 0 && stay > sector.DurationLimitMinutes {
				logging.Warn(ctx).
					Str("plate", sess.LicensePlate).
					Str("sector", sector.Code).
					Int("minutes", stay).
					Int("limit_minutes", sector.DurationLimitMinutes).
					Msg("exit.over_limit")
			}
		}

		if sess.SpotID != nil {
			spotID = *sess.SpotID
			released, err := st.ReleaseIfHeld(ctx, spotID, sess.ID)
			if err != nil {
				return fmt.Errorf("release spot: %w", err)
			}
			if released {
				sess.SpotID = nil
			}
		}
		if err := st.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		closed = sess
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if closed == nil {
		logging.Info(ctx).Str("plate", ev.LicensePlate).Msg("exit.ignored")
		return nil, nil
	}

	s.metrics.exit(ctx, sectorCode, *closed.ChargedAmountCents)
	logging.Info(ctx).
		Str("plate", closed.LicensePlate).
		Uint64("session_id", closed.ID).
		Str("sector", sectorCode).
		Int64("charged_cents", *closed.ChargedAmountCents).
		Msg("exit.charged")

	s.publishClosed(ctx, closed, sectorCode, spotID)
	return closed, nil
}

func (s *Service) publishClosed(ctx context.Context, sess *model.Session, sectorCode string, spotID uint64) {
	if s.publisher == nil {
		return
	}
	ev := queue.SessionClosedEvent{
		SessionID:          sess.ID,
		LicensePlate:       sess.LicensePlate,
		SectorCode:         sectorCode,
		SpotID:             spotID,
		EntryTime:          sess.EntryTime.UTC().Format(time.RFC3339),
		ExitTime:           sess.ExitTime.UTC().Format(time.RFC3339),
		PriceFactor:        sess.PriceFactor,
		BasePriceCents:     *sess.BasePriceCents,
		ChargedAmountCents: *sess.ChargedAmountCents,
	}
	if err := s.publisher.PublishSessionClosed(ctx, ev); err != nil {
		logging.Warn(ctx).Err(err).Uint64("session_id", sess.ID).Msg("exit.publish_failed")
	}
}

func startSpan(ctx context.Context, name, plate string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("vehicle.plate", plate)))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
