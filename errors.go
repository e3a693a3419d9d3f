package omgpp

import "errors"

// Sentinel errors returned by the transport façade, the endpoint cores, and
// the supporting registries. Use errors.Is to check for these; some are
// wrapped with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrTransportUnavailable is returned by an endpoint constructor when
	// the transport's process-wide initialization failed.
	ErrTransportUnavailable = errors.New("omgpp: transport unavailable")

	// ErrSocketCreateFailed is returned when listen/connect failed at the
	// transport layer.
	ErrSocketCreateFailed = errors.New("omgpp: socket create failed")

	// ErrAlreadyConnected is returned by Client.Connect when called while
	// already Connecting or Connected.
	ErrAlreadyConnected = errors.New("omgpp: already connected")

	// ErrNotConnected is returned by client sends when no socket exists.
	ErrNotConnected = errors.New("omgpp: not connected")

	// ErrUnknownPeer is returned by server sends targeting an identity not
	// present in the connection tracker's handle map.
	ErrUnknownPeer = errors.New("omgpp: unknown peer")

	// ErrEncodeFailed is returned by the wire codec's encoders.
	ErrEncodeFailed = errors.New("omgpp: encode failed")

	// ErrDecodeFailed is returned by the wire codec's decoder.
	ErrDecodeFailed = errors.New("omgpp: decode failed")

	// ErrAlreadyRegistered is returned by a command dispatcher's Register
	// when the command name is already registered.
	ErrAlreadyRegistered = errors.New("omgpp: command already registered")

	// ErrReentrancyViolation is returned when a user callback attempts a
	// mutating operation on a data structure that is already mid-mutation
	// elsewhere in the same call stack.
	ErrReentrancyViolation = errors.New("omgpp: reentrancy violation")

	// ErrTransportError wraps a per-recipient failure returned by the
	// transport on a send batch.
	ErrTransportError = errors.New("omgpp: transport error")
)
