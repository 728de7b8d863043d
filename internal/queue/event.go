// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// SessionClosedQueue is the durable queue carrying SessionClosedEvent.
const SessionClosedQueue = "session.closed"

// SessionClosedEvent is published after an exit has been committed.  It
// carries everything the ledger needs so consumers never query the
// primary database.
type SessionClosedEvent struct {
    SessionID          uint64 `json:"session_id"`
    LicensePlate       string `json:"license_plate"`
    SectorCode         string `json:"sector,omitempty"`
    SpotID             uint64 `json:"spot_id,omitempty"`
    EntryTime          string `json:"entry_time"`
    ExitTime           string `json:"exit_time"`
    PriceFactor        int64  `json:"price_factor"`
    BasePriceCents     int64  `json:"base_price_cents"`
    ChargedAmountCents int64  `json:"charged_amount_cents"`
}
