package parking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/garage-parking/internal/model"
)

func TestDecodeEntry(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"license_plate":"ZUL0001","entry_time":"2025-01-01T12:00:00.000Z","event_type":"ENTRY"}`))
	require.NoError(t, err)
	entry, ok := ev.(EntryEvent)
	require.True(t, ok)
	assert.Equal(t, "ZUL0001", entry.Plate())
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), entry.EntryTime)
}

func TestDecodeParkedKeepsExactCoordinates(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"license_plate":"ZUL0001","lat":-23.561684,"lng":-46.655981,"event_type":"PARKED"}`))
	require.NoError(t, err)
	parked, ok := ev.(ParkedEvent)
	require.True(t, ok)
	assert.Equal(t, model.Coord(-235616840), parked.Lat)
	assert.Equal(t, model.Coord(-466559810), parked.Lng)
}

func TestDecodeExitWithoutZoneIsUTC(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"license_plate":"ZUL0001","exit_time":"2025-01-01T14:30:00","event_type":"exit"}`))
	require.NoError(t, err)
	exit, ok := ev.(ExitEvent)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC), exit.ExitTime)
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"malformed json", `{"event_type":`, ErrInvalidPayload},
		{"unknown type", `{"event_type":"TELEPORT","license_plate":"A"}`, ErrUnknownEvent},
		{"missing type", `{"license_plate":"A"}`, ErrUnknownEvent},
		{"blank plate", `{"event_type":"ENTRY","license_plate":"  ","entry_time":"2025-01-01T12:00:00Z"}`, ErrInvalidPayload},
		{"missing entry time", `{"event_type":"ENTRY","license_plate":"A"}`, ErrInvalidTimestamp},
		{"bad exit time", `{"event_type":"EXIT","license_plate":"A","exit_time":"yesterday"}`, ErrInvalidTimestamp},
		{"missing lng", `{"event_type":"PARKED","license_plate":"A","lat":1.5}`, ErrInvalidPayload},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(c.body))
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestParseTimestampOffsets(t *testing.T) {
	want := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2025-01-01T09:00:00Z",
		"2025-01-01T06:00:00-03:00",
		"2025-01-01T06:00:00-0300",
		"2025-01-01T09:00:00",
		"2025-01-01 09:00:00",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s parsed as %s", s, got)
	}
}
