package crosspost

import "fmt"

// ValidationError rejects a submission before any network is contacted.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// AuthError marks a single target whose stored credentials are missing or
// unusable. It never aborts sibling targets.
type AuthError struct {
	Network Network
	Reason  string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("%s auth failed: %s", e.Network, e.Reason)
}

// RateLimitError is a distinguished 429 from a network. Remaining and Reset
// carry the quota headers when the network sent them ("" otherwise).
type RateLimitError struct {
	Network   Network
	Remaining string
	Reset     string
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited", e.Network)
}

// PublishError is any other non-2xx or transport failure for one target.
// Body holds a snippet of the response for diagnostics.
type PublishError struct {
	Network    Network
	StatusCode int
	Body       string
}

func (e PublishError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s publish failed: %s", e.Network, e.Body)
	}
	return fmt.Sprintf("%s publish failed: status %d: %s", e.Network, e.StatusCode, e.Body)
}
