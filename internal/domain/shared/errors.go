package shared

import "fmt"

// SyncError represents a synchronization-level error
type SyncError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return e.Message
}

// NewSyncError creates a new sync error
func NewSyncError(code, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
	}
}

// Common sync errors
var (
	ErrNotConnected  = NewSyncError("NOT_CONNECTED", "Transport is not connected")
	ErrStaleSequence = NewSyncError("STALE_SEQUENCE", "Envelope sequence is stale or duplicate")
	ErrUnknownDomain = NewSyncError("UNKNOWN_DOMAIN", "No adapter registered for domain")
	ErrUnknownAction = NewSyncError("UNKNOWN_ACTION", "Action is not valid for this domain")
	ErrWriteConflict = NewSyncError("WRITE_CONFLICT", "Optimistic write was overridden by server truth")
	ErrWriteTimeout  = NewSyncError("WRITE_TIMEOUT", "No confirmation arrived before the write timed out")
)

// DecodeError represents a single malformed inbound message.
// It is logged and dropped by the caller, never propagated further.
type DecodeError struct {
	Event  string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %q: %s: %v", e.Event, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %q: %s", e.Event, e.Reason)
}

// Unwrap returns the underlying cause, if any
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new decode error
func NewDecodeError(event, reason string, err error) *DecodeError {
	return &DecodeError{Event: event, Reason: reason, Err: err}
}
