// Package apperr defines the error taxonomy shared by the ingestion and query components.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("invalid signature")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or incomplete input. It is never retried.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func Validation(field, format string, args ...interface{}) *ValidationError {
	msg := fmt.Sprintf(format, args...)
	return &ValidationError{Message: msg, Fields: []FieldError{{Field: field, Message: msg}}}
}

// ConflictError is returned when a sync is already active for the same key.
type ConflictError struct {
	Key        string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync already in progress for %s: %s", e.Key, e.ExistingID)
}

// UpstreamError wraps a graph store or provider API failure after retries are exhausted.
type UpstreamError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type ProviderResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// PartialFailure aggregates per-provider outcomes of a multi-provider ingestion.
type PartialFailure struct {
	Results map[string]ProviderResult
}

func (e *PartialFailure) Error() string {
	var failed []string
	for provider, r := range e.Results {
		if !r.Success {
			failed = append(failed, provider)
		}
	}
	sort.Strings(failed)
	return "ingestion failed for providers: " + strings.Join(failed, ", ")
}

// StatusCode maps the taxonomy onto HTTP status codes.
func StatusCode(err error) int {
	var validation *ValidationError
	var conflict *ConflictError
	var upstream *UpstreamError
	var partial *PartialFailure
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &partial):
		return http.StatusOK
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
