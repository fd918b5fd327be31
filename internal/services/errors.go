package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"murmur/internal/queue"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrLaunch        = errors.New("process launch error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrAuth          = errors.New("provider auth or quota error")
	ErrParse         = errors.New("transcript parse error")
	ErrCorrupt       = errors.New("cache corruption")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a pipeline error to the terminal queue status the
// workflow manager should persist after the task fails. Cancellation keeps
// its own terminal status and is never recorded as a failure.
func FailureStatus(err error) queue.Status {
	if errors.Is(err, context.Canceled) {
		return queue.StatusCancelled
	}
	return queue.StatusFailed
}

// NeedsReview reports whether the failure points at operator-fixable input or
// configuration rather than a runtime fault.
func NeedsReview(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrNotFound)
}

type retryableError interface {
	Retryable() bool
}

// IsRetryable reports whether another attempt at the failed operation could
// reasonably succeed. Errors that classify themselves take precedence;
// otherwise only the timeout and transient markers retry. Cancellation and
// caller deadlines never retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rc retryableError
	if errors.As(err, &rc) {
		return rc.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
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
