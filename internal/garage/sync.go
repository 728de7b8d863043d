package garage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/model"
	"github.com/iliyamo/garage-parking/internal/repository"
)

// SyncStats counts what a sync wrote and skipped.
type SyncStats struct {
	Sectors      int
	Spots        int
	SkippedSpots int
}

// Synchronizer upserts a catalog: sectors by code, spots by id.  Spot
// occupants are never touched, so a resync while sessions are open is
// safe.  Spots naming an unknown sector or carrying unreadable
// coordinates are skipped with a warning.
type Synchronizer struct {
	store repository.TxStore
}

func NewSynchronizer(store repository.TxStore) *Synchronizer {
	return &Synchronizer{store: store}
}

func (s *Synchronizer) Sync(ctx context.Context, cat *Catalog) (SyncStats, error) {
	var stats SyncStats
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		stats = SyncStats{}
		for _, dto := range cat.Garage {
			sector, err := toSector(dto)
			if err != nil {
				return err
			}
			if err := st.UpsertSector(ctx, &sector); err != nil {
				return fmt.Errorf("upsert sector %s: %w", sector.Code, err)
			}
			stats.Sectors++
		}

		for _, dto := range cat.Spots {
			sector, err := st.GetSectorByCode(ctx, strings.TrimSpace(dto.Sector))
			if errors.Is(err, repository.ErrNotFound) {
				logging.Warn(ctx).Uint64("spot_id", dto.ID).Str("sector", dto.Sector).Msg("garage.spot_unknown_sector")
				stats.SkippedSpots++
				continue
			}
			if err != nil {
				return err
			}
			lat, errLat := model.ParseCoord(dto.Lat.String())
			lng, errLng := model.ParseCoord(dto.Lng.String())
			if err := errors.Join(errLat, errLng); err != nil {
				logging.Warn(ctx).Err(err).Uint64("spot_id", dto.ID).Msg("garage.spot_bad_coords")
				stats.SkippedSpots++
				continue
			}
			if err := st.UpsertSpot(ctx, model.Spot{ID: dto.ID, SectorID: sector.ID, Lat: lat, Lng: lng}); err != nil {
				return fmt.Errorf("upsert spot %d: %w", dto.ID, err)
			}
			stats.Spots++
		}
		return nil
	})
	if err != nil {
		return SyncStats{}, err
	}

	logging.Info(ctx).
		Int("sectors", stats.Sectors).
		Int("spots", stats.Spots).
		Int("skipped_spots", stats.SkippedSpots).
		Msg("garage.synced")
	return stats, nil
}

func toSector(dto SectorDTO) (model.Sector, error) {
	code := strings.TrimSpace(dto.Sector)
	if code == "" {
		return model.Sector{}, errors.New("garage: sector without code")
	}
	cents, err := model.ParseCents(dto.BasePrice.String())
	if err != nil {
		return model.Sector{}, fmt.Errorf("garage: sector %s base_price %q: %w", code, dto.BasePrice, err)
	}
	return model.Sector{
		Code:                 code,
		BasePriceCents:       cents,
		MaxCapacity:          dto.MaxCapacity,
		OpenHour:             dto.OpenHour,
		CloseHour:            dto.CloseHour,
		DurationLimitMinutes: dto.DurationLimitMinutes,
	}, nil
}
