package hxclient

import (
	"errors"
	"fmt"

	"github.com/pthm/hxclient/lib/encoding"
)

// Sentinel errors, one per Kind.
var (
	ErrInvalidConfig        = errors.New("hxclient: invalid configuration")
	ErrPreconditionRejected = errors.New("hxclient: precondition rejected")
	ErrHandlerPanic         = errors.New("hxclient: handler panicked")
	ErrTransportFailed      = errors.New("hxclient: transport failed")
	ErrProcessingTimeout    = errors.New("hxclient: processing timed out")
)

// Errors reported when opening sealed binding attributes.
var (
	ErrInvalidFormat    = encoding.ErrInvalidFormat
	ErrSignatureInvalid = encoding.ErrSignatureInvalid
	ErrDecryptFailed    = encoding.ErrDecryptFailed
)

// Kind classifies what went wrong.
type Kind int

const (
	// KindConfiguration: a malformed item. Logged, item dropped, no handler
	// invoked.
	KindConfiguration Kind = iota + 1
	// KindPrecondition: a precondition vetoed dispatch. Expected and benign.
	KindPrecondition
	// KindHandler: a user callback panicked. Remaining callbacks still run.
	KindHandler
	// KindTransport: the network call failed. Error handlers receive it.
	KindTransport
	// KindTimeout: the failsafe abandoned an item.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPrecondition:
		return "precondition"
	case KindHandler:
		return "handler"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrInvalidConfig
	case KindPrecondition:
		return ErrPreconditionRejected
	case KindHandler:
		return ErrHandlerPanic
	case KindTransport:
		return ErrTransportFailed
	case KindTimeout:
		return ErrProcessingTimeout
	}
	return nil
}

// Error is a classified error. errors.Is matches both the Kind's sentinel
// and anything Err wraps.
type Error struct {
	Kind Kind
	Op   string
	Item string
	Err  error
}

func newError(kind Kind, op, item string, err error) *Error {
	return &Error{Kind: kind, Op: op, Item: item, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("hxclient: %s error in %s", e.Kind, e.Op)
	if e.Item != "" {
		msg += " (item " + e.Item + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// IsConfiguration checks if err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsPrecondition checks if err is a precondition rejection.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPreconditionRejected)
}

// IsHandler checks if err comes from a panicking callback.
func IsHandler(err error) bool {
	return errors.Is(err, ErrHandlerPanic)
}

// IsTransport checks if err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransportFailed)
}

// IsTimeout checks if err is a failsafe abandonment.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProcessingTimeout)
}

// IsSealError checks if err comes from opening tampered or malformed sealed
// attributes.
func IsSealError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrDecryptFailed)
}
