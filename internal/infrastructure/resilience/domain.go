package resilience

import (
	"context"
	"errors"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

// DomainClassifier classifies errors that providers already tagged with domain kinds.
func DomainClassifier(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDataIntegrity):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrNonRetriable):
		return ErrorClassification{Retryable: false, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: domain.IsRetriable(err), RecordFailure: true}
	}
}

// ToDomainError tags an executor result with a domain kind. Errors already carrying a kind
// and caller cancellations pass through; timeouts and open circuits become fallbackKind.
func ToDomainError(operation string, err error, fallbackKind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAttemptTimeout) || IsCircuitOpen(err) {
		if hasKind(err) {
			return err
		}
		return domain.WrapError(fallbackKind, operation, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if hasKind(err) {
		return err
	}
	return domain.WrapError(fallbackKind, operation, err)
}

func hasKind(err error) bool {
	for _, kind := range []error{
		domain.ErrTransient,
		domain.ErrNonRetriable,
		domain.ErrDataIntegrity,
		domain.ErrIndexUnavailable,
		domain.ErrInvalidInput,
		domain.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Retry runs fn under the executor policy with DomainClassifier.
func (e *Executor) Retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	return e.Execute(ctx, operation, fn, DomainClassifier)
}
