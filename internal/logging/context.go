package logging

import (
	"context"
	"log/slog"

	"cinelex/internal/services"
)

// Structured logging keys shared by every component.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldItemID        = "item_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldErrorKind     = "error_kind"
	// FieldImpact is the operator-visible consequence of a warning.
	FieldImpact = "impact"

	fieldError = "error"
)

var contextKeys = []struct {
	field string
	get   func(context.Context) (string, bool)
}{
	{FieldJobID, services.JobIDFromContext},
	{FieldItemID, services.ItemIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the job, item, stage, and request identifiers
// carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, key := range contextKeys {
		if value, ok := key.get(ctx); ok {
			fields = append(fields, slog.String(key.field, value))
		}
	}
	return fields
}

// WithContext binds the identifiers in ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
