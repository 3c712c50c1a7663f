package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Timeout("wait-for-view-ready", context.DeadlineExceeded)
	assert.Equal(t, "timeout error in wait-for-view-ready: context deadline exceeded", err.Error())

	err = NotFound("locate", "no row matches 452.67")
	assert.Equal(t, "not_found error in locate: no row matches 452.67", err.Error())

	err = &Error{Type: ErrorTypeTransport, Message: "agent gone", Err: fmt.Errorf("page closed")}
	assert.Equal(t, "transport error: agent gone: page closed", err.Error())
}

func TestTypeOfThroughWrapping(t *testing.T) {
	base := Transport("ping", stderrors.New("execution context destroyed"))
	wrapped := fmt.Errorf("step failed: %w", base)

	assert.True(t, IsTransport(wrapped))
	assert.False(t, IsTimeout(wrapped))
	assert.Equal(t, ErrorTypeTransport, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.True(t, stderrors.Is(Timeout("x", context.DeadlineExceeded), context.DeadlineExceeded))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeTransport, true},
		{ErrorTypeTimeout, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeFatal, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.errorType))
		})
	}
}
