package tmdb

import (
	"fmt"

	"cinelex/internal/services"
)

// RequestError reports a TMDB call that failed or exhausted its retries.
type RequestError struct {
	Op         string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("tmdb %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrRequest}
	}
	return []error{services.ErrRequest, e.Err}
}

// ValidationError rejects a year argument or a malformed provider record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == services.ErrValidation }

// PageError is a non-fatal discover failure. The stream moves on to the next page.
type PageError struct {
	Year  int
	Range DateRange
	Page  int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("discover %d %s..%s page %d: %v", e.Year, e.Range.From, e.Range.To, e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// RecordError is a per-movie failure. The stream skips the record.
type RecordError struct {
	TMDBID int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("movie %d: %v", e.TMDBID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
