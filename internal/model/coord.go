package model

import (
    "errors"
    "strconv"
    "strings"
)

// CoordScale is the number of fractional digits kept for a coordinate.
const CoordScale = 7

// Coord is a latitude or longitude stored as a fixed-point integer with
// CoordScale fractional digits, so equality checks are exact.
type Coord int64

// ErrInvalidCoord is returned when a coordinate literal cannot be parsed.
var ErrInvalidCoord = errors.New("invalid coordinate")

// ParseCoord converts a decimal literal such as "-23.561684" without going
// through float64.  Digits beyond CoordScale are rounded half away from zero.
func ParseCoord(s string) (Coord, error) {
    v, ok := parseFixed(s, CoordScale)
    if !ok {
        return 0, ErrInvalidCoord
    }
    return Coord(v), nil
}

// parseFixed reads a decimal literal as an integer count of 10^-scale
// units, rounding extra digits half away from zero.
func parseFixed(s string, scale int) (int64, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0, false
    }
    neg := false
    switch s[0] {
    case '-':
        neg = true
        s = s[1:]
    case '+':
        s = s[1:]
    }
    intPart, frac, _ := strings.Cut(s, ".")
    if intPart == "" && frac == "" {
        return 0, false
    }
    if intPart == "" {
        intPart = "0"
    }
    roundUp := false
    if len(frac) > scale {
        for _, ch := range frac[scale:] {
            if ch < '0' || ch > '9' {
                return 0, false
            }
        }
        roundUp = frac[scale] >= '5'
        frac = frac[:scale]
    }
    frac += strings.Repeat("0", scale-len(frac))
    whole, err := strconv.ParseUint(intPart, 10, 32)
    if err != nil {
        return 0, false
    }
    var fr uint64
    if frac != "" {
        fr, err = strconv.ParseUint(frac, 10, 64)
        if err != nil {
            return 0, false
        }
    }
    v := int64(whole)*pow10(scale) + int64(fr)
    if roundUp {
        v++
    }
    if neg {
        v = -v
    }
    return v, true
}

// String renders the coordinate back as a decimal literal.
func (c Coord) String() string {
    v := int64(c)
    sign := ""
    if v < 0 {
        sign = "-"
        v = -v
    }
    p := pow10(CoordScale)
    frac := strconv.FormatInt(v%p, 10)
    frac = strings.Repeat("0", CoordScale-len(frac)) + frac
    frac = strings.TrimRight(frac, "0")
    if frac == "" {
        return sign + strconv.FormatInt(v/p, 10)
    }
    return sign + strconv.FormatInt(v/p, 10) + "." + frac
}

func pow10(n int) int64 {
    p := int64(1)
    for i := 0; i < n; i++ {
        p *= 10
    }
    return p
}
