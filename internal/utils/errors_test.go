package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("upstream returned status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "wrapped deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), expected: true},
		{name: "network timeout", err: timeoutErr{}, expected: true},
		{name: "rate limited", err: statusErr{code: 429}, expected: true},
		{name: "service unavailable", err: statusErr{code: 503}, expected: true},
		{name: "wrapped 502", err: fmt.Errorf("openrouter: %w", statusErr{code: 502}), expected: true},
		{name: "unauthorized", err: statusErr{code: 401}, expected: false},
		{name: "bad request", err: statusErr{code: 400}, expected: false},
		{name: "plain error", err: errors.New("invalid input"), expected: false},
		{name: "canceled", err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRecoverableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRecoverableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}
