package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/garage-parking/internal/model"
)

// SpotRepo provides access to the spots table.  The occupied_by_session_id
// column is the only shared mutable state of the garage; it is written
// exclusively by single-row conditional UPDATE statements whose affected
// row count tells the caller whether it won.
type SpotRepo struct {
	db querier
}

// NewSpotRepo constructs a SpotRepo with the given DB handle.
func NewSpotRepo(db *sql.DB) *SpotRepo { return &SpotRepo{db: db} }

const spotColumns = `id, sector_id, lat_e7, lng_e7, occupied_by_session_id`

func scanSpot(row interface{ Scan(...any) error }) (*model.Spot, error) {
	var (
		s   model.Spot
		occ sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.SectorID, &s.Lat, &s.Lng, &occ); err != nil {
		return nil, err
	}
	if occ.Valid {
		v := uint64(occ.Int64)
		s.OccupiedBy = &v
	}
	return &s, nil
}

func (r *SpotRepo) one(ctx context.Context, q string, args ...any) (*model.Spot, error) {
	s, err := scanSpot(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *SpotRepo) count(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// CountSpots returns the physical capacity of the garage.
func (r *SpotRepo) CountSpots(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM spots`)
}

// CountOccupied returns how many spots currently have an occupant.
func (r *SpotRepo) CountOccupied(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM spots WHERE occupied_by_session_id IS NOT NULL`)
}

// CountOccupiedInSector returns how many spots of a sector have an occupant.
func (r *SpotRepo) CountOccupiedInSector(ctx context.Context, sectorID uint64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM spots WHERE sector_id = ? AND occupied_by_session_id IS NOT NULL`, sectorID)
}

// GetSpot retrieves a spot by id.
func (r *SpotRepo) GetSpot(ctx context.Context, id uint64) (*model.Spot, error) {
	return r.one(ctx, `SELECT `+spotColumns+` FROM spots WHERE id = ?`, id)
}

// FirstFreeInSector returns the lowest-id free spot of a sector.
func (r *SpotRepo) FirstFreeInSector(ctx context.Context, sectorID uint64) (*model.Spot, error) {
	return r.one(ctx, `SELECT `+spotColumns+` FROM spots
	                   WHERE sector_id = ? AND occupied_by_session_id IS NULL
	                   ORDER BY id LIMIT 1`, sectorID)
}

// FindByCoords returns all spots located exactly at lat/lng.
func (r *SpotRepo) FindByCoords(ctx context.Context, lat, lng model.Coord) ([]model.Spot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+spotColumns+` FROM spots
	                                     WHERE lat_e7 = ? AND lng_e7 = ? ORDER BY id`, int64(lat), int64(lng))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// NearestInSector returns the spot of the sector closest to lat/lng
// (squared planar distance, ties broken by id).
func (r *SpotRepo) NearestInSector(ctx context.Context, sectorID uint64, lat, lng model.Coord) (*model.Spot, error) {
	return r.one(ctx, `SELECT `+spotColumns+` FROM spots WHERE sector_id = ?
	                   ORDER BY POW(lat_e7 - ?, 2) + POW(lng_e7 - ?, 2), id LIMIT 1`,
		sectorID, int64(lat), int64(lng))
}

// Nearest returns the spot closest to lat/lng across the whole garage.
func (r *SpotRepo) Nearest(ctx context.Context, lat, lng model.Coord) (*model.Spot, error) {
	return r.one(ctx, `SELECT `+spotColumns+` FROM spots
	                   ORDER BY POW(lat_e7 - ?, 2) + POW(lng_e7 - ?, 2), id LIMIT 1`,
		int64(lat), int64(lng))
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TryOccupy claims a free spot for a session.
func (r *SpotRepo) TryOccupy(ctx context.Context, spotID, sessionID uint64) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE spots SET occupied_by_session_id = ? WHERE id = ? AND occupied_by_session_id IS NULL`,
		sessionID, spotID))
}

// TrySwapOccupant hands a spot from expected to next.
func (r *SpotRepo) TrySwapOccupant(ctx context.Context, spotID, expected, next uint64) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE spots SET occupied_by_session_id = ? WHERE id = ? AND occupied_by_session_id = ?`,
		next, spotID, expected))
}

// ReleaseIfHeld frees a spot still claimed by sessionID.
func (r *SpotRepo) ReleaseIfHeld(ctx context.Context, spotID, sessionID uint64) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE spots SET occupied_by_session_id = NULL WHERE id = ? AND occupied_by_session_id = ?`,
		spotID, sessionID))
}

// ClearOccupant frees a spot unconditionally.
func (r *SpotRepo) ClearOccupant(ctx context.Context, spotID uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE spots SET occupied_by_session_id = NULL WHERE id = ?`, spotID)
	return err
}

// UpsertSpot inserts a catalog spot or refreshes its sector and position.
func (r *SpotRepo) UpsertSpot(ctx context.Context, s model.Spot) error {
	const q = `INSERT INTO spots (id, sector_id, lat_e7, lng_e7) VALUES (?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE sector_id = VALUES(sector_id), lat_e7 = VALUES(lat_e7), lng_e7 = VALUES(lng_e7)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.SectorID, int64(s.Lat), int64(s.Lng))
	return err
}
