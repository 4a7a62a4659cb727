package perr

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", New(ErrorCodeUnavailable, "503"), true},
		{"rate limited", Newf(ErrorCodeTooManyRequests, "429 on %s", "7203"), true},
		{"session crash", Wrap(errors.New("target closed"), ErrorCodeSessionCrashed, "browser"), true},
		{"not found", New(ErrorCodeNotFound, "no page"), false},
		{"invalid argument", New(ErrorCodeInvalidArgument, "empty code"), false},
		{"deadline", fmt.Errorf("get page: %w", context.DeadlineExceeded), true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unknown wrapping reset", Wrap(syscall.ECONNRESET, ErrorCodeUnknown, "fetch"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := New(ErrorCodeSessionCrashed, "chrome exited")
	wrapped := fmt.Errorf("extract 7203: %w", base)

	assert.Equal(t, ErrorCodeSessionCrashed, CodeOf(wrapped))
	assert.True(t, IsSessionCrash(wrapped))
	assert.Equal(t, ErrorCodeUnknown, CodeOf(errors.New("x")))
	assert.Equal(t, "session_crashed", CodeOf(wrapped).String())
}

func TestErrorMessage(t *testing.T) {
	err := Wrapf(errors.New("connection refused"), ErrorCodeDB, "replace benefits for %s", "1301")
	assert.Equal(t, "replace benefits for 1301: connection refused", err.Error())
	assert.ErrorIs(t, err, errors.Unwrap(err))
}
