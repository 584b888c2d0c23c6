// ABOUTME: Outcome taxonomy for external capability calls
// ABOUTME: Classifies provider errors into retryable and terminal buckets

package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Outcome classifies the result of a capability call.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeValidationError  Outcome = "validation-error"
	OutcomeRateLimited      Outcome = "rate-limited"
	OutcomeTransientTimeout Outcome = "transient-timeout"
	OutcomePermanentFailure Outcome = "permanent-failure"
)

// Retryable reports whether a call with this outcome may be attempted again.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransientTimeout
}

// ProviderError is a structured error reported by the external capability.
// Code carries the provider's machine-readable error code when one was
// returned (for example HOLD_NOT_FOUND).
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// CallError is what the router surfaces to callers: the classified outcome
// plus a human-describable message, never a raw provider payload.
type CallError struct {
	Capability Capability
	Outcome    Outcome
	Attempts   int
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed (%s after %d attempts): %v",
		e.Capability, e.Outcome, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Describe renders the failure as a sentence suitable for a chat message.
func (e *CallError) Describe() string {
	switch e.Outcome {
	case OutcomeValidationError:
		return "I couldn't make that request because some details were missing or invalid."
	case OutcomeRateLimited:
		return "The service is rate limiting us right now. Give it a moment and try again."
	case OutcomeTransientTimeout:
		return "The service didn't respond in time. It may be having a hiccup; try again shortly."
	default:
		var pe *ProviderError
		if errors.As(e.Err, &pe) && pe.Message != "" {
			return fmt.Sprintf("The service rejected the request: %s.", pe.Message)
		}
		return "The service rejected the request and retrying won't help."
	}
}

// Classify maps an error from a capability call to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return OutcomeValidationError
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case pe.StatusCode >= 500:
			return OutcomeTransientTimeout
		default:
			return OutcomePermanentFailure
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTransientTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return OutcomeTransientTimeout
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		// Connection-level failures (refused, reset) are worth retrying.
		return OutcomeTransientTimeout
	}

	return OutcomePermanentFailure
}
