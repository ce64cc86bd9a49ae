package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"cinelex/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrRequest, "tmdb", "discover", "page 3", base)
	if !errors.Is(err, services.ErrRequest) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"tmdb", "discover", "page 3", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrRequest) {
		t.Fatalf("expected request marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Outcome
	}{
		{"plain", errors.New("io"), services.OutcomeRetryable},
		{"request", services.Wrap(services.ErrRequest, "tmdb", "get", "", nil), services.OutcomeRetryable},
		{"validation", services.Wrap(services.ErrValidation, "tmdb", "normalize", "no date", nil), services.OutcomeSkip},
		{"not found", fmt.Errorf("lookup: %w", services.ErrNotFound), services.OutcomeSkip},
		{"configuration", services.ErrConfiguration, services.OutcomeTerminal},
		{"conflict", services.ErrConcurrencyConflict, services.OutcomeTerminal},
		{"empty candidates", services.ErrEmptyCandidateSet, services.OutcomeTerminal},
		{"quota", services.ErrQuotaExhausted, services.OutcomeTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
