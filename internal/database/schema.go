package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
// The occupant column is a weak reference and carries no foreign key so a
// session row can be discarded without touching spots first.  open_plate
// is non-NULL only while a session is open, which makes the unique index
// enforce one open session per plate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sectors (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(16) NOT NULL,
		base_price_cents BIGINT NOT NULL,
		max_capacity INT NOT NULL,
		open_hour VARCHAR(5) NOT NULL DEFAULT '00:00',
		close_hour VARCHAR(5) NOT NULL DEFAULT '23:59',
		duration_limit_minutes INT NOT NULL DEFAULT 0,
		updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_sectors_code (code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS spots (
		id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		sector_id BIGINT UNSIGNED NOT NULL,
		lat_e7 BIGINT NOT NULL,
		lng_e7 BIGINT NOT NULL,
		occupied_by_session_id BIGINT UNSIGNED NULL,
		KEY idx_spots_sector_free (sector_id, occupied_by_session_id, id),
		KEY idx_spots_coords (lat_e7, lng_e7),
		CONSTRAINT fk_spots_sector FOREIGN KEY (sector_id) REFERENCES sectors (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		license_plate VARCHAR(32) NOT NULL,
		sector_id BIGINT UNSIGNED NULL,
		spot_id BIGINT UNSIGNED NULL,
		entry_time DATETIME(3) NOT NULL,
		exit_time DATETIME(3) NULL,
		base_price_cents BIGINT NULL,
		price_factor BIGINT NOT NULL,
		charged_amount_cents BIGINT NULL,
		open_plate VARCHAR(32) AS (IF(exit_time IS NULL, license_plate, NULL)) STORED,
		UNIQUE KEY uq_sessions_open_plate (open_plate),
		KEY idx_sessions_plate (license_plate, entry_time),
		KEY idx_sessions_exit (exit_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
