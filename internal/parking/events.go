package parking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/garage-parking/internal/model"
)

// EventType is the discriminator carried in the event_type field.
type EventType string

const (
	EventEntry  EventType = "ENTRY"
	EventParked EventType = "PARKED"
	EventExit   EventType = "EXIT"
)

// Event is a lifecycle notification from the positioning source.  The set
// of implementations is closed: EntryEvent, ParkedEvent and ExitEvent.
type Event interface {
	Type() EventType
	Plate() string
	sealed()
}

type EntryEvent struct {
	LicensePlate string
	EntryTime    time.Time
}

type ParkedEvent struct {
	LicensePlate string
	Lat, Lng     model.Coord
}

type ExitEvent struct {
	LicensePlate string
	ExitTime     time.Time
}

func (EntryEvent) Type() EventType  { return EventEntry }
func (ParkedEvent) Type() EventType { return EventParked }
func (ExitEvent) Type() EventType   { return EventExit }

func (e EntryEvent) Plate() string  { return e.LicensePlate }
func (e ParkedEvent) Plate() string { return e.LicensePlate }
func (e ExitEvent) Plate() string   { return e.LicensePlate }

func (EntryEvent) sealed()  {}
func (ParkedEvent) sealed() {}
func (ExitEvent) sealed()   {}

// webhookPayload is the union of all event fields as they arrive on the
// wire.  Coordinates are kept as number text so they parse exactly.
type webhookPayload struct {
	EventType    string      `json:"event_type"`
	LicensePlate string      `json:"license_plate"`
	EntryTime    string      `json:"entry_time"`
	ExitTime     string      `json:"exit_time"`
	Lat          json.Number `json:"lat"`
	Lng          json.Number `json:"lng"`
}

// DecodeEvent validates a webhook body and returns the matching event.
// Errors wrap ErrInvalidPayload, ErrUnknownEvent or ErrInvalidTimestamp.
func DecodeEvent(body []byte) (Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	plate := strings.TrimSpace(p.LicensePlate)

	switch EventType(strings.ToUpper(strings.TrimSpace(p.EventType))) {
	case EventEntry:
		if plate == "" {
			return nil, fmt.Errorf("%w: license_plate is required", ErrInvalidPayload)
		}
		ts, err := ParseTimestamp(p.EntryTime)
		if err != nil {
			return nil, err
		}
		return EntryEvent{LicensePlate: plate, EntryTime: ts}, nil
	case EventParked:
		if plate == "" {
			return nil, fmt.Errorf("%w: license_plate is required", ErrInvalidPayload)
		}
		if p.Lat == "" || p.Lng == "" {
			return nil, fmt.Errorf("%w: lat and lng are required", ErrInvalidPayload)
		}
		lat, err := model.ParseCoord(p.Lat.String())
		if err != nil {
			return nil, fmt.Errorf("%w: lat: %v", ErrInvalidPayload, err)
		}
		lng, err := model.ParseCoord(p.Lng.String())
		if err != nil {
			return nil, fmt.Errorf("%w: lng: %v", ErrInvalidPayload, err)
		}
		return ParkedEvent{LicensePlate: plate, Lat: lat, Lng: lng}, nil
	case EventExit:
		if plate == "" {
			return nil, fmt.Errorf("%w: license_plate is required", ErrInvalidPayload)
		}
		ts, err := ParseTimestamp(p.ExitTime)
		if err != nil {
			return nil, err
		}
		return ExitEvent{LicensePlate: plate, ExitTime: ts}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, p.EventType)
}

// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps with or without a zone offset
// and returns them in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
