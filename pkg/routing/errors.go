package routing

import "errors"

// ErrNoProvidersAvailable is returned when paring leaves the candidate
// list empty: every enabled provider is either breaker-open, missing the
// required capability, excluded by the request's hints, or lacking a
// mandatory model mapping. Strategies also return it when none of the
// providers they target survived paring.
var ErrNoProvidersAvailable = errors.New("no providers available for request")

// ErrUnknownProvider identifies a reference to a provider that is not
// configured. The router and strategies do not return it: a strategy or
// hint naming an unknown provider yields ErrNoProvidersAvailable.
var ErrUnknownProvider = errors.New("unknown provider")
