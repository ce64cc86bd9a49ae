package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrRequest             = errors.New("request error")
	ErrValidation          = errors.New("validation error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrEmptyCandidateSet   = errors.New("empty candidate set")
	ErrNotFound            = errors.New("not found")
	ErrQuotaExhausted      = errors.New("quota exhausted")
)

// Outcome tells a caller how to react to a failure.
type Outcome int

const (
	// OutcomeRetryable failures may succeed on a later attempt.
	OutcomeRetryable Outcome = iota
	// OutcomeTerminal failures will not succeed without operator action.
	OutcomeTerminal
	// OutcomeSkip failures concern a single record; the surrounding work continues.
	OutcomeSkip
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrRequest
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the action its caller should take. Unmarked
// errors are treated as retryable.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeRetryable
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return OutcomeSkip
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrEmptyCandidateSet),
		errors.Is(err, ErrQuotaExhausted):
		return OutcomeTerminal
	default:
		return OutcomeRetryable
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
