package model

import "errors"

// ErrInvalidAmount is returned when a money literal cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseCents converts a decimal currency literal such as "10.5" into cents,
// rounding sub-cent digits half away from zero.  Negative amounts are
// rejected.
func ParseCents(s string) (int64, error) {
    v, ok := parseFixed(s, 2)
    if !ok || v < 0 {
        return 0, ErrInvalidAmount
    }
    return v, nil
}
