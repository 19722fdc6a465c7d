package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks timeouts, rate limits and 5xx responses. Callers may retry.
	ErrTransient = errors.New("transient service error")
	// ErrNonRetriable marks auth failures, permanent quota exhaustion and malformed requests.
	ErrNonRetriable = errors.New("non-retriable service error")
	// ErrDataIntegrity marks structural mismatches such as a wrong vector dimension. Never retried.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrIndexUnavailable marks an unreachable vector index.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRetriable reports whether err is worth another attempt.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, ErrDataIntegrity) || IsKind(err, ErrNonRetriable) || IsKind(err, ErrInvalidInput) {
		return false
	}
	return IsKind(err, ErrTransient) || IsKind(err, ErrIndexUnavailable)
}

// IngestionError is the terminal per-document failure surfaced to the trigger.
// Step is the state the run failed to reach.
type IngestionError struct {
	DocumentID string
	Step       IngestionState
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest document %s: step %s: %v", e.DocumentID, e.Step, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// UpsertError reports the records of a partially failed upsert.
type UpsertError struct {
	FailedIDs []string
	Succeeded int
	Err       error
}

func (e *UpsertError) Error() string {
	ids := e.FailedIDs
	suffix := ""
	if len(ids) > 5 {
		ids = ids[:5]
		suffix = ",..."
	}
	return fmt.Sprintf("upsert failed for %d record(s) [%s%s], %d succeeded: %v",
		len(e.FailedIDs), strings.Join(ids, ","), suffix, e.Succeeded, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }
