package freshness

import (
	"fmt"
	"time"
)

// MaxAgePolicy implements Policy with a fixed age threshold.
type MaxAgePolicy struct {
	config Config
}

// NewMaxAgePolicy creates a new max-age policy.
func NewMaxAgePolicy(config Config) *MaxAgePolicy {
	return &MaxAgePolicy{
		config: config,
	}
}

// Reuse implements Policy.
func (p *MaxAgePolicy) Reuse(age time.Duration) (bool, string) {
	if p.config.ForceNew {
		return false, "new backup forced"
	}

	if age < 0 {
		return false, fmt.Sprintf("backup is dated %s in the future", formatDuration(-age))
	}

	if age >= p.config.MaxAge {
		return false, fmt.Sprintf(
			"backup is %s old, older than the %s limit",
			formatDuration(age),
			formatDuration(p.config.MaxAge),
		)
	}

	return true, fmt.Sprintf("backup is %s old", formatDuration(age))
}

// Fresh implements Policy.
func (p *MaxAgePolicy) Fresh(age time.Duration) bool {
	return age >= 0 && age < p.config.MaxAge
}

// MaxAge implements Policy.
func (p *MaxAgePolicy) MaxAge() time.Duration {
	return p.config.MaxAge
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}
