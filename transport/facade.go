// Package transport defines the thin façade over the external
// reliable-UDP transport library that the rest of this module depends
// on: create a socket, listen or connect, poll low-level callbacks, poll
// connection-state-change events, poll inbound messages, accept or close
// a connection, and send a batch of messages. These are the only
// supported effects on the network; every other package in this module
// reaches the wire only through a Socket.
//
// The façade is deliberately transport-agnostic: Socket is implemented
// both by a QUIC-backed Socket (quicSocket, using streams for the
// reliable channel and datagrams for the unreliable one) and by an
// in-process loopback Socket (memSocket) used in tests that need
// deterministic, allocation-light event delivery without a real network.
package transport

import (
	"net/netip"

	"github.com/omgpp-project/omgpp"
)

// Handle is an opaque transport-level connection handle. It is valid only
// while the underlying connection exists and is never exposed above the
// connection tracker.
type Handle uint64

// PeerState is the transport's own view of a connection's lifecycle,
// distinct from (and coarser than) the endpoint core's ConnectionState:
// the core layers ConnectedUnverified/Connected admission semantics on
// top of the transport's bare Connecting/Connected/closed transitions.
type PeerState int

const (
	// StateNone means the transport has no record of this peer.
	StateNone PeerState = iota
	// StateConnecting means the transport session is being established.
	StateConnecting
	// StateConnected means the transport session is fully established.
	StateConnected
	// StateClosedByPeer means the remote end closed the connection.
	StateClosedByPeer
	// StateProblemDetectedLocally means the local transport detected a
	// fatal condition (timeout, protocol error) and closed the
	// connection.
	StateProblemDetectedLocally
)

func (s PeerState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosedByPeer:
		return "ClosedByPeer"
	case StateProblemDetectedLocally:
		return "ProblemDetectedLocally"
	default:
		return "PeerState(?)"
	}
}

// Flags distinguishes reliable from unreliable delivery for a send.
type Flags int

const (
	// Unreliable sends with no delivery or ordering guarantee.
	Unreliable Flags = iota
	// Reliable sends with guaranteed, in-order delivery on that peer's
	// reliable channel.
	Reliable
)

// Event is a connection-state-change notification.
type Event struct {
	Handle   Handle
	Endpoint omgpp.Endpoint
	OldState PeerState
	NewState PeerState
}

// InMessage is one inbound message surfaced by PollMessages.
type InMessage struct {
	Handle  Handle
	Flags   Flags
	Payload []byte
}

// OutMessage is a message allocated by AllocateMessage and ready to hand
// to SendBatch.
type OutMessage struct {
	Handle  Handle
	Flags   Flags
	Payload []byte
}

// SendResult is the per-message outcome of a SendBatch call.
type SendResult struct {
	SequenceNo uint64
	Err        error
}

// Facade creates sockets. A process obtains exactly one Facade
// implementation (selected at endpoint-construction time) and uses it to
// listen or connect.
type Facade interface {
	// Listen binds a listening socket to (bindAddr, port).
	Listen(bindAddr netip.Addr, port uint16) (Socket, error)
	// Connect opens a socket dialing (addr, port).
	Connect(addr netip.Addr, port uint16) (Socket, error)
}

// Socket is a single transport-level socket. The transport is assumed to
// be single-threaded per socket: all operations on a Socket must occur
// from a single owning task, matching the cooperative per-cycle polling
// model the endpoint cores drive it with.
type Socket interface {
	// PollLowLevelCallbacks drains the transport's internal callback
	// queue (retransmission timers, MTU probes, etc.) that must run
	// before events and messages are polled for this cycle.
	PollLowLevelCallbacks()

	// PollEvents invokes visitor for up to maxN pending
	// connection-state-change events and returns the number processed.
	PollEvents(maxN int, visitor func(Event)) int

	// PollMessages invokes visitor for up to maxN pending inbound
	// messages and returns the number processed.
	PollMessages(maxN int, visitor func(InMessage)) int

	// Accept admits a connection that is in StateConnecting.
	Accept(h Handle) error

	// Close closes a connection. reasonCode is an application-defined
	// code (this module always uses 0); reasonString is surfaced to the
	// peer. linger requests that already-queued reliable sends attempt
	// delivery before the connection is torn down.
	Close(h Handle, reasonCode uint32, reasonString string, linger bool) error

	// AllocateMessage prepares a message for handle h with the given
	// delivery flags, ready to pass to SendBatch.
	AllocateMessage(h Handle, flags Flags, payload []byte) OutMessage

	// SendBatch sends a batch of messages, returning one SendResult per
	// input message in order.
	SendBatch(msgs []OutMessage) []SendResult

	// LocalEndpoint returns the endpoint this socket is bound or
	// connected from.
	LocalEndpoint() omgpp.Endpoint

	// CloseSocket tears down the socket itself, closing every open connection.
	CloseSocket() error
}
