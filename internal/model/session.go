package model

import "time"

// Session records one vehicle's stay from entry to exit.  A session
// is open while ExitTime is nil and becomes terminal once the exit is
// processed.  The price factor is fixed at entry and never changes.
//
// Fields:
//  ID                 – primary key identifier.
//  LicensePlate       – vehicle plate reported by the positioning source.
//  SectorID           – current sector, nil until a spot is known.
//  SpotID             – current spot, nil when none is claimed.
//  EntryTime          – UTC entry timestamp.
//  ExitTime           – UTC exit timestamp, nil while open.
//  BasePriceCents     – base price inherited from the current sector.
//  PriceFactor        – multiplier in hundredths (110 = 1.10).
//  ChargedAmountCents – amount charged at exit.
type Session struct {
    ID                 uint64     // sessions.id
    LicensePlate       string     // sessions.license_plate
    SectorID           *uint64    // sessions.sector_id (nullable)
    SpotID             *uint64    // sessions.spot_id (nullable)
    EntryTime          time.Time  // sessions.entry_time
    ExitTime           *time.Time // sessions.exit_time (nullable)
    BasePriceCents     *int64     // sessions.base_price_cents (nullable)
    PriceFactor        int64      // sessions.price_factor
    ChargedAmountCents *int64     // sessions.charged_amount_cents (nullable)
}

// IsOpen reports whether the session has not exited yet.
func (s Session) IsOpen() bool { return s.ExitTime == nil }
