package domain

import (
	"fmt"
	"time"
)

// CacheDecision is the outcome of evaluating a result set's freshness
// against a client-supplied validation timestamp.
type CacheDecision struct {
	// NotModified is true when the client's copy is at least as fresh as
	// the content and can be served a not-modified response.
	NotModified bool

	// LastModified is the freshest content timestamp, truncated to second
	// granularity to match HTTP date resolution.
	LastModified time.Time

	// CacheControl is the directive string for fresh responses.
	CacheControl string
}

// EvaluateFreshness decides whether content with the given freshest creation
// timestamp is unchanged for a client that supplied ifModifiedSince (zero
// when absent). The advertised max-age equals the engine's own update
// frequency, with a stale-while-revalidate grace window on top, so clients
// are never told content is fresher than the update cadence.
func EvaluateFreshness(freshest, ifModifiedSince time.Time, updateFrequency, graceWindow time.Duration) CacheDecision {
	lastModified := freshest.UTC().Truncate(time.Second)

	decision := CacheDecision{
		LastModified: lastModified,
		CacheControl: fmt.Sprintf(
			"public, max-age=%d, stale-while-revalidate=%d",
			int(updateFrequency.Seconds()),
			int(graceWindow.Seconds()),
		),
	}

	if !ifModifiedSince.IsZero() && !ifModifiedSince.Before(lastModified) {
		decision.NotModified = true
	}
	return decision
}
