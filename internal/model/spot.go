package model

// Spot is a physical parking space inside exactly one sector.  The
// occupant is a weak back-reference to the session currently claiming
// the spot; it is only ever changed through conditional updates.
//
// Fields:
//  ID         – catalog identifier (not auto-generated).
//  SectorID   – owning sector.
//  Lat, Lng   – fixed-point coordinates.
//  OccupiedBy – id of the claiming session, nil when free.
type Spot struct {
    ID         uint64  // spots.id
    SectorID   uint64  // spots.sector_id
    Lat        Coord   // spots.lat_e7
    Lng        Coord   // spots.lng_e7
    OccupiedBy *uint64 // spots.occupied_by_session_id (nullable)
}

// IsFree reports whether no session claims the spot.
func (s Spot) IsFree() bool { return s.OccupiedBy == nil }

// HeldBy reports whether the spot is claimed by the given session.
func (s Spot) HeldBy(sessionID uint64) bool {
    return s.OccupiedBy != nil && *s.OccupiedBy == sessionID
}
