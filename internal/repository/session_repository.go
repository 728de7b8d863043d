package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/garage-parking/internal/model"
)

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

// SessionRepo provides CRUD operations for vehicle sessions.  All
// timestamps are stored in UTC.  The sessions table carries a generated
// open_plate column with a unique index so that at most one open session
// per plate can exist, even under concurrent inserts.
type SessionRepo struct {
	db querier
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, license_plate, sector_id, spot_id, entry_time, exit_time, base_price_cents, price_factor, charged_amount_cents`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var (
		s                     model.Session
		sectorID, spotID      sql.NullInt64
		exit                  sql.NullTime
		basePrice, chargedAmt sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.LicensePlate, &sectorID, &spotID, &s.EntryTime, &exit,
		&basePrice, &s.PriceFactor, &chargedAmt); err != nil {
		return nil, err
	}
	s.EntryTime = s.EntryTime.UTC()
	if sectorID.Valid {
		v := uint64(sectorID.Int64)
		s.SectorID = &v
	}
	if spotID.Valid {
		v := uint64(spotID.Int64)
		s.SpotID = &v
	}
	if exit.Valid {
		t := exit.Time.UTC()
		s.ExitTime = &t
	}
	if basePrice.Valid {
		v := basePrice.Int64
		s.BasePriceCents = &v
	}
	if chargedAmt.Valid {
		v := chargedAmt.Int64
		s.ChargedAmountCents = &v
	}
	return &s, nil
}

func nullUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

// CreateSession inserts an open session and populates its ID.
func (r *SessionRepo) CreateSession(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions (license_plate, sector_id, spot_id, entry_time, base_price_cents, price_factor)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.LicensePlate, nullUint(s.SectorID), nullUint(s.SpotID),
		s.EntryTime.UTC(), nullInt(s.BasePriceCents), s.PriceFactor)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrDuplicateOpenSession
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// UpdateSession writes every mutable column of the session.  Price factor
// and entry time are fixed at entry and never written here.
func (r *SessionRepo) UpdateSession(ctx context.Context, s *model.Session) error {
	const q = `UPDATE sessions
	           SET sector_id = ?, spot_id = ?, exit_time = ?, base_price_cents = ?, charged_amount_cents = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, nullUint(s.SectorID), nullUint(s.SpotID), nullTime(s.ExitTime),
		nullInt(s.BasePriceCents), nullInt(s.ChargedAmountCents), s.ID)
	if err != nil {
		return err
	}
	// MySQL reports 0 affected rows when nothing changed, so only a
	// missing row is treated as an error.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetSession(ctx, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSession removes a session row.
func (r *SessionRepo) DeleteSession(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// GetSession retrieves a session by id.
func (r *SessionRepo) GetSession(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// LatestOpenByPlate returns the most recent open session for a plate.
func (r *SessionRepo) LatestOpenByPlate(ctx context.Context, plate string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
	                                                 WHERE license_plate = ? AND exit_time IS NULL
	                                                 ORDER BY id DESC LIMIT 1`, plate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// CountOpenByPlate counts open sessions of a plate.
func (r *SessionRepo) CountOpenByPlate(ctx context.Context, plate string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE license_plate = ? AND exit_time IS NULL`, plate).Scan(&n)
	return n, err
}

// SumChargedBetween totals charged amounts for sessions that exited in
// [start, end), optionally restricted to one sector code.
func (r *SessionRepo) SumChargedBetween(ctx context.Context, start, end time.Time, sectorCode string) (int64, error) {
	const q = `SELECT COALESCE(SUM(s.charged_amount_cents), 0)
	           FROM sessions s
	           LEFT JOIN sectors c ON c.id = s.sector_id
	           WHERE s.exit_time >= ? AND s.exit_time < ?
	             AND (? = '' OR c.code = ?)`
	var sum int64
	err := r.db.QueryRowContext(ctx, q, start.UTC(), end.UTC(), sectorCode, sectorCode).Scan(&sum)
	return sum, err
}
