// Package errkind implements the error taxonomy from the core's error
// handling design: every adapter boundary classifies failures into one of
// a small set of kinds so the retry policy and the Orchestrator can react
// uniformly instead of branching on provider-specific errors.
package errkind

import (
	"errors"
	"net/http"
)

// Kind is one of the error classes a subsystem boundary can surface.
type Kind string

const (
	ConfigError        Kind = "ConfigError"
	Transient          Kind = "Transient"
	RateLimited        Kind = "RateLimited"
	QuotaExceeded      Kind = "QuotaExceeded"
	AuthError          Kind = "AuthError"
	ParseError         Kind = "ParseError"
	LowPersonalization Kind = "LowPersonalization"
	Permanent          Kind = "Permanent"
	Cancelled          Kind = "Cancelled"
)

// Retryable reports whether the retry policy should ever attempt this
// kind again within the current run.
func (k Kind) Retryable() bool {
	switch k {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}

// Classified wraps an underlying error with its kind, carried through
// return values instead of being discovered by re-inspecting the error
// at each call site.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string {
	if c.Err == nil {
		return string(c.Kind)
	}
	return string(c.Kind) + ": " + c.Err.Error()
}

func (c *Classified) Unwrap() error { return c.Err }

// New wraps err with kind k. A nil err still yields a non-nil Classified
// carrying only the kind, useful for sentinel returns like RateLimitTimeout.
func New(k Kind, err error) *Classified {
	return &Classified{Kind: k, Err: err}
}

// As extracts the Kind carried by err, if any, defaulting to Permanent
// when err doesn't carry a classification.
func As(err error) Kind {
	if err == nil {
		return ""
	}
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return Permanent
}

// ClassifyHTTP maps a response status code and transport error into a
// Kind, the shared policy HTTPClient applies to every response, and so
// to the EmailFinder and Scrapers requests it carries.
func ClassifyHTTP(resp *http.Response, transportErr error) Kind {
	if transportErr != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(transportErr, &netErr) && netErr.Timeout() {
			return Transient
		}
		return Transient
	}
	if resp == nil {
		return Permanent
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return AuthError
	case resp.StatusCode == http.StatusRequestTimeout:
		return Transient
	case resp.StatusCode >= 500:
		return Transient
	case resp.StatusCode >= 400:
		return Permanent
	default:
		return ""
	}
}
