// Package schedule validates pickup times against the bakery's daily
// operating window. The check is pure: callers supply the candidate
// time and the window, nothing is read from the environment.
package schedule

import (
	"fmt"
	"time"
)

// Window is the daily pickup window. Open and Close are hours of the
// day (e.g. 8 and 18); both boundaries are inclusive. The window is
// evaluated on the pickup's own calendar day in Loc.
type Window struct {
	Open  int
	Close int
	Loc   *time.Location
}

func DefaultWindow() Window {
	return Window{Open: 8, Close: 18, Loc: time.Local}
}

// ValidatePickup reports whether t falls inside the window. A pickup
// at exactly the open or close boundary is allowed.
func ValidatePickup(t time.Time, w Window) error {
	loc := w.Loc
	if loc == nil {
		loc = time.Local
	}

	local := t.In(loc)
	opensAt := time.Date(local.Year(), local.Month(), local.Day(), w.Open, 0, 0, 0, loc)
	closesAt := time.Date(local.Year(), local.Month(), local.Day(), w.Close, 0, 0, 0, loc)

	if local.Before(opensAt) || local.After(closesAt) {
		return fmt.Errorf("pickup time must be within business hours (%d:00 - %d:00)", w.Open, w.Close)
	}

	return nil
}
