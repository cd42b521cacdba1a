package protocol

import (
	"errors"
	"fmt"
)

// Error kinds carried in error responses on the wire.
const (
	KindAuth     = "auth"
	KindProtocol = "protocol"
	KindState    = "state"
	KindTransfer = "transfer"
	KindNotFound = "not_found"
	KindStorage  = "storage"
)

// FramingError reports a malformed envelope. Fatal marks envelope-level
// corruption that desynchronizes the byte stream; the connection must be
// closed. A payload parse failure inside an intact envelope keeps the
// stream aligned and is recoverable.
type FramingError struct {
	Reason string
	Fatal  bool
}

func (e *FramingError) Error() string { return "framing: " + e.Reason }

func (e *FramingError) Kind() string { return KindProtocol }

// AuthError reports a failed or missing authentication.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

func (e *AuthError) Kind() string { return KindAuth }

// ProtocolError reports an unknown or ill-formed command.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Reason }

func (e *ProtocolError) Kind() string { return KindProtocol }

// StateError reports an invalid session state transition, such as starting
// a transfer while one is already active.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "state: " + e.Reason }

func (e *StateError) Kind() string { return KindState }

// TransferError reports an I/O failure mid-transfer together with the byte
// offset at which it occurred.
type TransferError struct {
	Offset int64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at offset %d: %v", e.Offset, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Kind() string { return KindTransfer }

// ServerError is an error response received from the peer, surfaced to the
// caller verbatim.
type ServerError struct {
	ErrKind string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%s): %s", e.ErrKind, e.Message)
}

func (e *ServerError) Kind() string { return e.ErrKind }

// Kinder is implemented by errors that map onto a wire error kind.
type Kinder interface {
	Kind() string
}

// KindOf returns the wire error kind for err, defaulting to the protocol
// kind for errors that carry none.
func KindOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindProtocol
}
