// Package fault defines the error taxonomy shared by every prism component.
//
// Every fatal condition raised by the shadow memory, the entity tracker or the
// event channel is a *Error carrying a Kind, the operation that failed and the
// address, id or path involved. Callers classify errors with Is or KindOf
// instead of matching message text.
//
// Example output:
//
//	resource exhaustion: shadowmem.UpdateWriter: addr 0x7f0012345678: footprint 4294967296 exceeds cap 4294967296
//
//	Hint: raise -max-shadow-mb or narrow -addr-bits
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is reported by KindOf for errors that did not originate here.
	Unknown Kind = iota

	// Configuration covers invalid address-width, split or channel parameters.
	Configuration

	// ResourceExhaustion covers the shadow-memory cap, entity-id overflow and
	// the reader-pool hard maximum.
	ResourceExhaustion

	// ProtocolViolation covers call-stack underflow, unknown event tags,
	// addresses beyond the configured width and malformed control values.
	ProtocolViolation

	// TransportFailure covers opening or operating the shared region and the
	// control channels, including liveness timeouts.
	TransportFailure
)

// String returns the lowercase name used in messages.
func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case ResourceExhaustion:
		return "resource exhaustion"
	case ProtocolViolation:
		return "protocol violation"
	case TransportFailure:
		return "transport failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
//
// Fields:
//   - Kind: taxonomy bucket
//   - Op: failing operation, "package.Method" style
//   - Subject: offending address, id or path (empty if none)
//   - Err: underlying cause (may be nil)
//   - Hint: optional suggestion appended to the message
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
	Hint    string
}

// Error implements the error interface.
//
// Format: kind: op: subject: cause
func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Op
	if e.Subject != "" {
		msg += ": " + e.Subject
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind. This lets callers
// write errors.Is(err, &fault.Error{Kind: fault.ProtocolViolation}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates a classified error. The cause is formatted from format and args.
func New(kind Kind, op, subject, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Subject: subject,
		Err:     fmt.Errorf(format, args...),
	}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// WithHint returns a copy of e carrying a suggestion.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// Configf creates a Configuration error.
func Configf(op, format string, args ...any) *Error {
	return New(Configuration, op, "", format, args...)
}

// Exhausted creates a ResourceExhaustion error.
func Exhausted(op, subject, format string, args ...any) *Error {
	return New(ResourceExhaustion, op, subject, format, args...)
}

// Violation creates a ProtocolViolation error.
func Violation(op, subject, format string, args ...any) *Error {
	return New(ProtocolViolation, op, subject, format, args...)
}

// Transport wraps err as a TransportFailure.
func Transport(op, subject string, err error) error {
	return Wrap(TransportFailure, op, subject, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err ends a session. Only resource exhaustion and
// protocol violations are fatal on their own; transport failures end the
// session too unless they occur during teardown.
func Fatal(err error) bool {
	switch KindOf(err) {
	case ResourceExhaustion, ProtocolViolation, TransportFailure:
		return true
	default:
		return false
	}
}

// Addr formats an address subject.
func Addr(addr uint64) string {
	return fmt.Sprintf("addr %#x", addr)
}

// ID formats an entity or sync id subject.
func ID(what string, id uint64) string {
	return fmt.Sprintf("%s %d", what, id)
}
