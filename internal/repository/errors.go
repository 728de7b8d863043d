// Package repository defines the persistence contract used by the parking
// core together with its MySQL implementation.  Sentinel errors declared
// here let higher layers distinguish expected conditions from genuine
// database failures.
package repository

import "errors"

// ErrNotFound is returned when a lookup yields no rows.  Callers in the
// lifecycle treat it as "nothing to do" rather than a failure.
var ErrNotFound = errors.New("not found")

// ErrDuplicateOpenSession is returned when inserting a session for a plate
// that already has an open session.  It is raised by the unique index on
// the open plate, so concurrent duplicate ENTRY deliveries collapse into one.
var ErrDuplicateOpenSession = errors.New("open session already exists for plate")
