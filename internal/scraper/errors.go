package scraper

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies a fetch failure.
type FetchErrorKind string

const (
	// FetchNotFound means the target page does not exist. The job completes
	// with zero items rather than retrying.
	FetchNotFound FetchErrorKind = "not_found"

	// FetchTimeout means the request timed out or the transport failed.
	FetchTimeout FetchErrorKind = "timeout"

	// FetchBlocked means the source refused the request (403, 429).
	FetchBlocked FetchErrorKind = "blocked"

	// FetchParse means the page was retrieved but required fields could not
	// be extracted. Retrying would parse the same markup again.
	FetchParse FetchErrorKind = "parse_error"
)

// FetchError is a classified fetch failure.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient. NotFound is not
// retryable because it is a valid answer, and parse failures would fail the
// same way on every attempt.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchTimeout || e.Kind == FetchBlocked
}

// NewFetchError wraps err as a classified fetch failure.
func NewFetchError(kind FetchErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// AsFetchError extracts a FetchError from an error chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
