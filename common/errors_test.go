package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	t.Parallel()

	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := newError(ErrorKindLoad, "open", cause, "http://nowhere.test")
	wrapped := fmt.Errorf("running script: %w", err)

	assert.ErrorIs(t, wrapped, ErrLoad)
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrTimeout)
	assert.NotErrorIs(t, wrapped, newError(ErrorKindLoad, "reload", nil, ""))
	assert.Equal(t, ErrorKindLoad, KindOf(wrapped))
	assert.Equal(t, ErrorKind(0), KindOf(cause))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "kind", err: &Error{Kind: ErrorKindTimeout}, want: "timeout"},
		{name: "op", err: &Error{Kind: ErrorKindTimeout, Op: "wait"}, want: "wait: timeout"},
		{
			name: "all",
			err:  newError(ErrorKindSelectorNotFound, "clickSelector", errors.New("boom"), "%q", "#x"),
			want: `clickSelector: selector not found: "#x": boom`,
		},
		{name: "unknown", err: &Error{Kind: 42}, want: "ErrorKind(42)"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "timeout", outcome(newError(ErrorKindTimeout, "wait", nil, "")))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
