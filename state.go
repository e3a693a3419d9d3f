package omgpp

// ConnectionState describes where a peer is in the connection lifecycle.
type ConnectionState int

const (
	// None means the peer has never been seen.
	None ConnectionState = iota
	// Disconnected means the peer was seen before but is no longer connected.
	Disconnected
	// Disconnecting means a graceful close was initiated but has not yet
	// been observed as complete by the transport.
	Disconnecting
	// Connecting means the transport session is being established.
	Connecting
	// ConnectedUnverified means the transport session exists but the
	// admission handshake has not yet completed.
	ConnectedUnverified
	// Connected means the peer completed the admission handshake.
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case None:
		return "None"
	case Disconnected:
		return "Disconnected"
	case Disconnecting:
		return "Disconnecting"
	case Connecting:
		return "Connecting"
	case ConnectedUnverified:
		return "ConnectedUnverified"
	case Connected:
		return "Connected"
	default:
		return "ConnectionState(?)"
	}
}
