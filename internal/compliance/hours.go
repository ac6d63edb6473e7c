package compliance

import "time"

// HoursPolicy is the allowed calling window in the recipient's local
// timezone. Start is inclusive, End exclusive, both whole hours; the TCPA
// default is 8-21.
type HoursPolicy struct {
	StartHour int
	EndHour   int
}

// DefaultHours is the federal TCPA window.
var DefaultHours = HoursPolicy{StartHour: 8, EndHour: 21}

// Allows reports whether the local instant falls inside the window.
// Pure function - no I/O, no side effects.
func (p HoursPolicy) Allows(local time.Time) bool {
	h := local.Hour()
	return h >= p.StartHour && h < p.EndHour
}
