package driver

import (
	"fmt"
	"sort"
	"strings"
)

// BreakerOpenError is the per-provider skip recorded when a breaker
// fails the call fast.
type BreakerOpenError struct {
	Provider string
}

// Error implements the error interface.
func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("provider %q circuit breaker is open", e.Provider)
}

// AllProvidersFailedError aggregates the per-provider errors after the
// candidate list is exhausted.
type AllProvidersFailedError struct {
	// Errors maps provider name to its final error.
	Errors map[string]error
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errors[name]))
	}
	return fmt.Sprintf("all providers failed: %s", strings.Join(parts, "; "))
}

// AllBreakersOpen reports whether every candidate was skipped by an
// open breaker — the condition the HTTP layer maps to 503 rather than
// 502.
func (e *AllProvidersFailedError) AllBreakersOpen() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, err := range e.Errors {
		if _, ok := err.(*BreakerOpenError); !ok {
			return false
		}
	}
	return true
}
