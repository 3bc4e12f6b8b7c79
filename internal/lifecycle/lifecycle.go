// Package lifecycle computes how long an instance has left before it counts
// as expired, and encodes the creation/lifetime stamp written onto instances.
package lifecycle

import (
	"fmt"
	"time"
)

// DefaultLifetimeMinutes applies to instances without a lifetime stamp.
const DefaultLifetimeMinutes = 60

// Remaining is the result of Compute.
type Remaining struct {
	MinutesLeft int
	Expired     bool
}

// Compute returns the whole minutes left of lifetimeMinutes at now for an
// instance created at createdAt. Elapsed time is truncated to whole minutes
// and never negative, so a clock ahead of now does not extend the lifetime.
func Compute(createdAt time.Time, lifetimeMinutes int, now time.Time) Remaining {
	elapsed := int(now.Sub(createdAt) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	left := lifetimeMinutes - elapsed
	return Remaining{MinutesLeft: left, Expired: left <= 0}
}

// String renders the time-left column: "expired" or "<n>m".
func (r Remaining) String() string {
	if r.Expired {
		return "expired"
	}
	return fmt.Sprintf("%dm", r.MinutesLeft)
}

// StatusLabel renders a normalized state for listings. Expired instances keep
// their state with an "(expired)" suffix; gmab never terminates them itself.
func StatusLabel(state string, expired bool) string {
	if expired {
		return state + " (expired)"
	}
	return state
}
