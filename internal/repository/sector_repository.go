package repository // repository defines data access for garage sectors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/garage-parking/internal/model"
)

// SectorRepo provides access to the sectors table.
type SectorRepo struct {
	db querier
}

// NewSectorRepo constructs a SectorRepo with the given DB handle.
func NewSectorRepo(db *sql.DB) *SectorRepo { return &SectorRepo{db: db} }

const sectorColumns = `id, code, base_price_cents, max_capacity, open_hour, close_hour, duration_limit_minutes, updated_at`

func scanSector(row interface{ Scan(...any) error }) (*model.Sector, error) {
	var s model.Sector
	if err := row.Scan(&s.ID, &s.Code, &s.BasePriceCents, &s.MaxCapacity, &s.OpenHour,
		&s.CloseHour, &s.DurationLimitMinutes, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSectors returns every sector ordered by id.  The allocator depends
// on this order being stable.
func (r *SectorRepo) ListSectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sectorColumns+` FROM sectors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Sector
	for rows.Next() {
		s, err := scanSector(rows)
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

// GetSector retrieves a sector by id.
func (r *SectorRepo) GetSector(ctx context.Context, id uint64) (*model.Sector, error) {
	s, err := scanSector(r.db.QueryRowContext(ctx, `SELECT `+sectorColumns+` FROM sectors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// GetSectorByCode retrieves a sector by its unique code.
func (r *SectorRepo) GetSectorByCode(ctx context.Context, code string) (*model.Sector, error) {
	s, err := scanSector(r.db.QueryRowContext(ctx, `SELECT `+sectorColumns+` FROM sectors WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// MinBasePrice returns the lowest base price across all sectors.
func (r *SectorRepo) MinBasePrice(ctx context.Context) (int64, bool, error) {
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MIN(base_price_cents) FROM sectors`).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid, nil
}

// UpsertSector inserts the sector or refreshes its policy fields when the
// code already exists, then loads the id.
func (r *SectorRepo) UpsertSector(ctx context.Context, s *model.Sector) error {
	const q = `INSERT INTO sectors (code, base_price_cents, max_capacity, open_hour, close_hour, duration_limit_minutes)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	             base_price_cents = VALUES(base_price_cents),
	             max_capacity = VALUES(max_capacity),
	             open_hour = VALUES(open_hour),
	             close_hour = VALUES(close_hour),
	             duration_limit_minutes = VALUES(duration_limit_minutes)`
	if _, err := r.db.ExecContext(ctx, q, s.Code, s.BasePriceCents, s.MaxCapacity, s.OpenHour,
		s.CloseHour, s.DurationLimitMinutes); err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx, `SELECT id FROM sectors WHERE code = ?`, s.Code).Scan(&s.ID)
}
