package model

import "time"

// Sector describes a zone of the garage whose spots share price,
// capacity and duration-limit policy.  Sectors are keyed by their
// unique code and only change when the garage catalog is resynced.
//
// Fields:
//  ID                   – primary key identifier.
//  Code                 – unique sector code (e.g. "A").
//  BasePriceCents       – hourly base price in cents.
//  MaxCapacity          – maximum number of simultaneously taken spots.
//  OpenHour             – opening hour as HH:MM.
//  CloseHour            – closing hour as HH:MM.
//  DurationLimitMinutes – advisory maximum stay in minutes.
type Sector struct {
    ID                   uint64    // sectors.id
    Code                 string    // sectors.code
    BasePriceCents       int64     // sectors.base_price_cents
    MaxCapacity          int       // sectors.max_capacity
    OpenHour             string    // sectors.open_hour
    CloseHour            string    // sectors.close_hour
    DurationLimitMinutes int       // sectors.duration_limit_minutes
    UpdatedAt            time.Time // sectors.updated_at
}
