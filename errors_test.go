package hxclient

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pthm/hxclient/lib/transport"
)

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrInvalidConfig,
		ErrPreconditionRejected,
		ErrHandlerPanic,
		ErrTransportFailed,
		ErrProcessingTimeout,
		ErrInvalidFormat,
		ErrSignatureInvalid,
		ErrDecryptFailed,
	}

	for i, err1 := range errs {
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestErrorClassification(t *testing.T) {
	cause := &transport.StatusError{StatusCode: 502}

	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"nil", nil, IsTransport, false},
		{"configuration", newError(KindConfiguration, "submit", "a", errors.New("bad")), IsConfiguration, true},
		{"precondition", newError(KindPrecondition, "advance", "a", nil), IsPrecondition, true},
		{"handler", newError(KindHandler, "success", "a", errors.New("panic")), IsHandler, true},
		{"transport", newError(KindTransport, "dispatch", "a", cause), IsTransport, true},
		{"timeout", newError(KindTimeout, "failsafe", "a", nil), IsTimeout, true},
		{"wrapped timeout", fmt.Errorf("outer: %w", newError(KindTimeout, "failsafe", "a", nil)), IsTimeout, true},
		{"kind mismatch", newError(KindTransport, "dispatch", "a", nil), IsTimeout, false},
		{"plain error", errors.New("other"), IsConfiguration, false},
		{"seal error", fmt.Errorf("open: %w", ErrSignatureInvalid), IsSealError, true},
		{"not a seal error", ErrTransportFailed, IsSealError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := &transport.StatusError{StatusCode: 404}
	err := newError(KindTransport, "dispatch", "item-1", cause)

	var se *transport.StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Errorf("errors.As did not reach the cause: %v", err)
	}

	msg := err.Error()
	for _, want := range []string{"transport", "dispatch", "item-1", "404"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		KindConfiguration: "configuration",
		KindPrecondition:  "precondition",
		KindHandler:       "handler",
		KindTransport:     "transport",
		KindTimeout:       "timeout",
		Kind(0):           "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
