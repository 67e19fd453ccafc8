package crosspost

import (
	"fmt"
	"unicode/utf8"
)

// Per-network character limits. The binding limit for a submission is the
// minimum over the networks among its targets.
var characterLimits = map[Network]int{
	NetworkTwitter: 280,
	NetworkBluesky: 300,
	NetworkMisskey: 3000,
}

// defaultLimit applies when no recognized network is selected.
const defaultLimit = 3000

// ResolveLimit computes the binding character limit for the given targets.
func ResolveLimit(targets []Target) int {
	limit := defaultLimit
	for _, t := range targets {
		if l, ok := characterLimits[t.Network]; ok && l < limit {
			limit = l
		}
	}
	return limit
}

// CheckLength rejects text longer than limit, counted in runes. A failure
// aborts the whole submission before dispatch.
func CheckLength(text string, limit int) error {
	if utf8.RuneCountInString(text) > limit {
		return ValidationError{Reason: fmt.Sprintf("Text too long. Limit is %d characters.", limit)}
	}
	return nil
}
