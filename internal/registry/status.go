package registry

import (
	"fmt"
	"strings"
)

const (
	// StatusNoMatches is recorded when a counting engine matched nothing and
	// never matched before.
	StatusNoMatches = "no-matches"
	// StatusSkippedDisabled is recorded for disabled patch sets.
	StatusSkippedDisabled = "skipped (disabled)"

	degradedPrefix = "degraded"
)

// DeriveStatus computes the status recorded after a run from the previous
// match count, the new one and the engine's outcome label.
func DeriveStatus(prev, cur *int, outcome string) string {
	if cur == nil {
		return outcome
	}
	if *cur == 0 {
		if prev != nil && *prev > 0 {
			return fmt.Sprintf("%s: 0 matches (previously %d)", degradedPrefix, *prev)
		}
		return StatusNoMatches
	}
	return fmt.Sprintf("applied: %d matches", *cur)
}

// IsDegraded reports whether a derived status flags a rule that stopped
// matching.
func IsDegraded(status string) bool {
	return strings.HasPrefix(status, degradedPrefix)
}
