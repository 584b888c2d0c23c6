// ABOUTME: Tests for outcome classification
// ABOUTME: Covers provider status codes, timeouts, and unknown errors

package tools

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

var _ net.Error = fakeTimeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"rate limited", &ProviderError{StatusCode: 429}, OutcomeRateLimited},
		{"server error", &ProviderError{StatusCode: 503}, OutcomeTransientTimeout},
		{"bad request", &ProviderError{StatusCode: 400}, OutcomePermanentFailure},
		{"not found", &ProviderError{StatusCode: 404, Code: "HOLD_NOT_FOUND"}, OutcomePermanentFailure},
		{"deadline", context.DeadlineExceeded, OutcomeTransientTimeout},
		{"net timeout", fakeTimeoutErr{}, OutcomeTransientTimeout},
		{"conn refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, OutcomeTransientTimeout},
		{"validation", validator.New().Struct(&OpeningsRequest{}), OutcomeValidationError},
		{"unknown", errors.New("boom"), OutcomePermanentFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOutcomeRetryable(t *testing.T) {
	assert.True(t, OutcomeRateLimited.Retryable())
	assert.True(t, OutcomeTransientTimeout.Retryable())
	assert.False(t, OutcomeSuccess.Retryable())
	assert.False(t, OutcomeValidationError.Retryable())
	assert.False(t, OutcomePermanentFailure.Retryable())
}

func TestCallErrorDescribe(t *testing.T) {
	e := &CallError{
		Capability: CapBookingHold,
		Outcome:    OutcomePermanentFailure,
		Attempts:   1,
		Err:        &ProviderError{StatusCode: 404, Code: "HOLD_NOT_FOUND", Message: "hold does not exist or has expired"},
	}
	assert.Contains(t, e.Describe(), "hold does not exist")

	e = &CallError{Capability: CapDiscoverySearch, Outcome: OutcomeTransientTimeout, Attempts: 10, Err: context.DeadlineExceeded}
	assert.NotContains(t, e.Describe(), "deadline")
}
