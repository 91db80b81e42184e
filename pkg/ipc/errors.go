package ipc

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("ipc: not connected")
	ErrClientStopped       = errors.New("ipc: client stopped")
	ErrWriteFailed         = errors.New("ipc: write failed")
	ErrFrameTooLarge       = errors.New("ipc: frame exceeds maximum size")
	ErrOperationInUse      = errors.New("ipc: operation is still valid, invalidate it before reuse")
	ErrOperationCanceled   = errors.New("ipc: operation canceled")
	ErrDuplicateFunction   = errors.New("ipc: function already registered")
	ErrDuplicateCollection = errors.New("ipc: collection already registered")
	ErrUnknownCollection   = errors.New("ipc: collection not found")
	ErrUnknownFunction     = errors.New("ipc: function not found")
	ErrServerRunning       = errors.New("ipc: server is already initialized")
	ErrServerNotRunning    = errors.New("ipc: server is not initialized")
	ErrRateLimited         = errors.New("ipc: rate limit exceeded")
)

// LostConnectionMessage is the text carried by the Null value every pending
// call receives when the connection goes away before its reply.
const LostConnectionMessage = "Lost IPC Connection"

// DecodeError reports malformed or truncated wire data. Offset is the position
// in the payload where decoding stopped.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ipc: failed to decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(field string, offset int, err error) *DecodeError {
	return &DecodeError{
		Field:  field,
		Offset: offset,
		Err:    err,
	}
}
