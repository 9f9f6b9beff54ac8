// Package schedule implements the proactive-outreach projection: expanding
// sequences into scheduled check-ins, reconciling that projection against the
// persisted set, and selecting items that are due for dispatch.
//
// All functions in this package are pure over their inputs and take an
// explicit "now" so schedules can be tested deterministically.
package schedule

import "time"

// Clock supplies the current time. It is injected everywhere wall-clock reads
// would otherwise be ambient, so expansion, reconciliation, and due-item
// selection are deterministically testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }
