// Package freshness decides whether an existing backup is young enough to be
// reused instead of requesting a new one.
package freshness

import (
	"time"
)

// Policy defines how backup age is judged.
type Policy interface {
	// Reuse determines if an existing backup of the given age can be used
	// as is. The string return value is a human-readable reason.
	Reuse(age time.Duration) (bool, string)

	// Fresh reports whether a backup of the given age satisfies the policy.
	// Unlike Reuse it ignores ForceNew, so a backup created after a trigger
	// can be accepted.
	Fresh(age time.Duration) bool

	// MaxAge returns the freshness threshold.
	MaxAge() time.Duration
}

// Config holds configuration for the freshness policy.
type Config struct {
	// MaxAge is the maximum age of a reusable backup.
	MaxAge time.Duration

	// ForceNew disables reuse of existing backups when true.
	ForceNew bool
}
