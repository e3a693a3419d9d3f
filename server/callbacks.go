package server

import (
	"github.com/omgpp-project/omgpp"
)

// OnConnectionChanged is invoked whenever a peer's ConnectionState
// changes.
type OnConnectionChanged func(s *Server, identity omgpp.Identity, endpoint omgpp.Endpoint, state omgpp.ConnectionState)

// OnConnectRequested decides whether an incoming transport connection may
// proceed to the unverified phase. The default always returns true.
type OnConnectRequested func(s *Server, endpoint omgpp.Endpoint) bool

// OnMessage is invoked for a verified peer's application message.
type OnMessage func(s *Server, identity omgpp.Identity, endpoint omgpp.Endpoint, msgType int64, data []byte)

// OnRPC is invoked for a verified peer's RPC call.
type OnRPC func(s *Server, identity omgpp.Identity, endpoint omgpp.Endpoint, reliable bool, methodID int64, requestID uint64, argType int64, argData []byte)

// callbacks holds the fixed set of user-registrable handler slots. Each
// slot holds at most one handler; re-registering replaces it.
type callbacks struct {
	onConnectionChanged OnConnectionChanged
	onConnectRequested  OnConnectRequested
	onMessage           OnMessage
	onRPC               OnRPC
}

func defaultCallbacks() *callbacks {
	return &callbacks{
		onConnectRequested: func(*Server, omgpp.Endpoint) bool { return true },
	}
}

// OnConnectionChanged registers the connection-state-change handler.
func (s *Server) OnConnectionChanged(h OnConnectionChanged) { s.cb.onConnectionChanged = h }

// OnConnectRequested registers the admission-gate handler.
func (s *Server) OnConnectRequested(h OnConnectRequested) { s.cb.onConnectRequested = h }

// OnMessage registers the application-message handler.
func (s *Server) OnMessage(h OnMessage) { s.cb.onMessage = h }

// OnRPC registers the RPC handler.
func (s *Server) OnRPC(h OnRPC) { s.cb.onRPC = h }
