// Package comm defines the shared error taxonomy for the GridMesh
// communication core.
//
// Every layer (codec, auth, transport, locator, forwarding) reports
// failures through coded CommError values so callers can distinguish
// failure classes without depending on layer internals.
package comm

import (
	"errors"
	"fmt"
)

// CommError represents a communication-layer error with a structured
// error code.
type CommError struct {
	Code    string // Error code (e.g., "GM-PROTO-1000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *CommError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *CommError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison by code.
func (e *CommError) Is(target error) bool {
	t, ok := target.(*CommError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new CommError with the given code and message.
func New(code, message string) *CommError {
	return &CommError{Code: code, Message: message}
}

// WithDetails returns a copy of the error with additional details.
func (e *CommError) WithDetails(details string) *CommError {
	return &CommError{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *CommError) WithCause(cause error) *CommError {
	return &CommError{Code: e.Code, Message: e.Message, Details: e.Details, Cause: cause}
}

// Code extracts the error code from an error if it is a CommError.
func Code(err error) string {
	var ce *CommError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// ============================================================================
// Protocol Errors (PROTO)
// ============================================================================

var (
	// ErrFraming indicates a corrupt, truncated, or oversized frame.
	// A body length exceeding the remaining buffer is always a framing
	// error, never a partial read.
	ErrFraming = New("GM-PROTO-1000", "message framing error")

	// ErrVersion indicates an unsupported protocol version. The peer
	// identity is recovered best-effort for audit logging before this
	// is surfaced.
	ErrVersion = New("GM-PROTO-1001", "unsupported protocol version")
)

// ============================================================================
// Authentication Errors (AUTH)
//
// All backend-specific credential failures unify here so no backend
// detail leaks to the wire.
// ============================================================================

var (
	// ErrAuth is the unified authentication error class covering
	// credential creation, pack, unpack, verify, and identity
	// extraction failures.
	ErrAuth = New("GM-AUTH-1100", "authentication error")

	// ErrKeyTooLong indicates the global authentication key exceeds the
	// fixed maximum length. This is a configuration-sanity violation:
	// the process must not proceed.
	ErrKeyTooLong = New("GM-AUTH-1101", "global authentication key too long")
)

// ============================================================================
// Transport Errors (COMM)
// ============================================================================

var (
	// ErrConnect indicates a connection could not be established.
	ErrConnect = New("GM-COMM-2000", "communications connection failure")

	// ErrSend indicates a message could not be sent.
	ErrSend = New("GM-COMM-2001", "communications send failure")

	// ErrReceive indicates a message could not be received.
	ErrReceive = New("GM-COMM-2002", "communications receive failure")

	// ErrShutdown indicates the write-side shutdown or delivery poll of
	// a fire-and-forget send failed.
	ErrShutdown = New("GM-COMM-2003", "communications shutdown failure")
)

// ============================================================================
// Controller Errors (CTLD)
//
// Transport errors are remapped to these at the controller boundary so
// callers can tell controller contact failures apart from node contact
// failures.
// ============================================================================

var (
	// ErrControllerConnect indicates no configured controller could be
	// reached.
	ErrControllerConnect = New("GM-CTLD-2100", "controller connection failure")

	// ErrControllerSend indicates a send to the controller failed.
	ErrControllerSend = New("GM-CTLD-2101", "controller send failure")

	// ErrControllerReceive indicates a receive from the controller failed.
	ErrControllerReceive = New("GM-CTLD-2102", "controller receive failure")

	// ErrControllerShutdown indicates a shutdown against the controller
	// connection failed.
	ErrControllerShutdown = New("GM-CTLD-2103", "controller shutdown failure")
)

// RemapController rewrites generic transport error codes to their
// controller-specific classes. Unknown errors pass through unchanged.
func RemapController(err error) error {
	if err == nil {
		return nil
	}
	var ce *CommError
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Code {
	case ErrConnect.Code:
		return ErrControllerConnect.WithCause(err)
	case ErrSend.Code:
		return ErrControllerSend.WithCause(err)
	case ErrReceive.Code:
		return ErrControllerReceive.WithCause(err)
	case ErrShutdown.Code:
		return ErrControllerShutdown.WithCause(err)
	}
	return err
}

// ============================================================================
// Availability Errors (AVAIL)
// ============================================================================

var (
	// ErrInStandby indicates the contacted controller replica is not
	// yet in control (failover in progress).
	ErrInStandby = New("GM-AVAIL-2200", "controller in standby mode")

	// ErrNoController indicates every configured controller endpoint
	// was exhausted.
	ErrNoController = New("GM-AVAIL-2201", "no controller reachable")

	// ErrRerouteLoop indicates the cross-cluster reroute chain exceeded
	// the hop bound.
	ErrRerouteLoop = New("GM-AVAIL-2202", "reroute hop limit exceeded")
)

// ============================================================================
// Forwarding Errors (FWD)
// ============================================================================

var (
	// ErrForwardFailed marks a synthetic response entry for a node that
	// never answered because its branch relay was unreachable or timed
	// out. Forwarding failures degrade the result list; they are never
	// fatal to the overall call.
	ErrForwardFailed = New("GM-FWD-2300", "message forward failed")
)
