package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"cinelex/internal/services"
)

const (
	maxRequestBody = 1 << 20
	maxUploadBody  = 5 << 20
)

// SyncRequest is the body of POST /api/sync. Either Year or the
// StartYear/EndYear pair must be set.
type SyncRequest struct {
	Year       int    `json:"year" validate:"omitempty,gte=1900,lte=2100,excluded_with=StartYear EndYear"`
	StartYear  int    `json:"start_year" validate:"required_with=EndYear,omitempty,gte=1900,lte=2100"`
	EndYear    int    `json:"end_year" validate:"required_with=StartYear,omitempty,gtefield=StartYear,lte=2100"`
	Language   string `json:"language" validate:"omitempty,min=2,max=10"`
	MaxResults *int   `json:"max_results" validate:"omitempty,gte=0"`
	Priority   int    `json:"priority" validate:"gte=0"`
}

// AcquireRequest is the body of POST /api/subtitles/acquire.
type AcquireRequest struct {
	Language     string `json:"language" validate:"omitempty,min=2,max=10"`
	MaxDownloads int    `json:"max_downloads" validate:"gte=0,lte=10000"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Text string `json:"text" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeRequest reads a JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func decodeRequest(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode request: %v", services.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", services.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err.Error()
	}
	parts := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Validate applies the field rules and requires a year or a range.
func (r SyncRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", services.ErrValidation, describeValidation(err))
	}
	return r.check()
}

func (r SyncRequest) check() error {
	if r.Year == 0 && r.StartYear == 0 {
		return fmt.Errorf("%w: year or start_year/end_year is required", services.ErrValidation)
	}
	return nil
}

func (r SyncRequest) maxResults() int {
	if r.MaxResults == nil {
		return -1
	}
	return *r.MaxResults
}
