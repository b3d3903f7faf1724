// Package observability provides request-scoped structured logging for
// the sync server.
package observability

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldAccount is the field name for the account key.
	LogFieldAccount = "account"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

// RequestContext carries a request ID and start time through the
// handling of one API request.
type RequestContext struct {
	RequestID string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRequestContext creates a request context with a generated ID.
func NewRequestContext(logger *slog.Logger) *RequestContext {
	return NewRequestContextWithID(logger, generateRequestID())
}

// NewRequestContextWithID creates a request context with a specific ID,
// typically taken from an incoming X-Request-Id header.
func NewRequestContextWithID(logger *slog.Logger, requestID string) *RequestContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestContext{
		RequestID: requestID,
		StartTime: time.Now(),
		Logger:    logger.With(slog.String(LogFieldRequestID, requestID)),
	}
}

// Info logs an info message with the request fields attached.
func (r *RequestContext) Info(msg string, args ...any) {
	r.Logger.Info(msg, args...)
}

// Warn logs a warning with the request fields attached.
func (r *RequestContext) Warn(msg string, args ...any) {
	r.Logger.Warn(msg, args...)
}

// Done logs the request completion with its total duration.
func (r *RequestContext) Done(msg string, args ...any) {
	args = append(args, slog.Int64(LogFieldDuration, time.Since(r.StartTime).Milliseconds()))
	r.Logger.Info(msg, args...)
}

func generateRequestID() string {
	return uuid.New().String()
}
