package client

import (
	"github.com/omgpp-project/omgpp"
)

// OnConnectionChanged is invoked whenever the connection's ConnectionState
// changes.
type OnConnectionChanged func(c *Client, serverEndpoint omgpp.Endpoint, state omgpp.ConnectionState)

// OnAuthenticate supplies the credential strings sent in the AUTH command
// once the transport session reaches ConnectedUnverified. A nil handler
// sends an empty credential list.
type OnAuthenticate func(c *Client, serverEndpoint omgpp.Endpoint) []string

// OnMessage is invoked for an application message received from the
// server. There is no verification gate on the client side: the client
// trusts whatever its single server connection sends it.
type OnMessage func(c *Client, serverEndpoint omgpp.Endpoint, msgType int64, data []byte)

// OnRPC is invoked for an RPC call received from the server.
type OnRPC func(c *Client, serverEndpoint omgpp.Endpoint, reliable bool, methodID int64, requestID uint64, argType int64, argData []byte)

// callbacks holds the fixed set of user-registrable handler slots. Each
// slot holds at most one handler; re-registering replaces it.
type callbacks struct {
	onConnectionChanged OnConnectionChanged
	onAuthenticate      OnAuthenticate
	onMessage           OnMessage
	onRPC               OnRPC
}

func defaultCallbacks() *callbacks {
	return &callbacks{}
}

// OnConnectionChanged registers the connection-state-change handler.
func (c *Client) OnConnectionChanged(h OnConnectionChanged) { c.cb.onConnectionChanged = h }

// OnAuthenticate registers the credential-supplying handler invoked before
// the AUTH command is sent.
func (c *Client) OnAuthenticate(h OnAuthenticate) { c.cb.onAuthenticate = h }

// OnMessage registers the application-message handler.
func (c *Client) OnMessage(h OnMessage) { c.cb.onMessage = h }

// OnRPC registers the RPC handler.
func (c *Client) OnRPC(h OnRPC) { c.cb.onRPC = h }
