// Package client implements the client endpoint core: it owns a single
// transport socket connected to one server, a callback table, and a
// command dispatcher; drives the per-cycle polling loop; and implements
// the connection-lifecycle state machine and the admission handshake
// described by the networking core this module implements.
package client

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
	"github.com/omgpp-project/omgpp/internal/reentry"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

// Client is the client endpoint core. A Client is driven by exactly one
// task, which must call Process repeatedly; none of its methods are safe
// to call concurrently from multiple goroutines.
type Client struct {
	cfg    Config
	facade transport.Facade
	log    zerolog.Logger
	guard  reentry.Guard

	socket         transport.Socket
	serverEndpoint omgpp.Endpoint
	handle         transport.Handle
	hasHandle      bool
	state          omgpp.ConnectionState

	disp *command.Dispatcher
	cb   *callbacks
}

// New constructs a Client configured to dial cfg.ServerAddr:cfg.ServerPort
// on Connect. facade is retained and used for the eventual Connect call.
func New(facade transport.Facade, cfg Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		cfg:            cfg,
		facade:         facade,
		log:            logger.With().Str("component", "client").Logger(),
		serverEndpoint: omgpp.NewEndpoint(cfg.ServerAddr, cfg.ServerPort),
		state:          omgpp.None,
		cb:             defaultCallbacks(),
	}
	c.disp = command.New(c.stateOf)
	c.registerBuiltins()
	return c, nil
}

// stateOf ignores the identity argument: a Client tracks exactly one
// connection, its own, so the dispatcher's auth gate always consults the
// client's single current state.
func (c *Client) stateOf(omgpp.Identity) omgpp.ConnectionState { return c.state }

// State returns the client's current ConnectionState.
func (c *Client) State() omgpp.ConnectionState { return c.state }

// ServerEndpoint returns the configured server endpoint.
func (c *Client) ServerEndpoint() omgpp.Endpoint { return c.serverEndpoint }

// RegisterCommand adds a named command handler to the dispatcher.
func (c *Client) RegisterCommand(name string, authRequired bool, h command.Handler) error {
	release, ok := c.guard.Enter()
	if !ok {
		return omgpp.ErrReentrancyViolation
	}
	defer release()
	return c.disp.Register(name, authRequired, h)
}

// Connect initiates the transport connection to the configured server. It
// returns ErrAlreadyConnected if a connection attempt is already underway
// or established.
func (c *Client) Connect() error {
	if c.state == omgpp.Connecting || c.state == omgpp.ConnectedUnverified || c.state == omgpp.Connected {
		return omgpp.ErrAlreadyConnected
	}
	socket, err := c.facade.Connect(c.cfg.ServerAddr, c.cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrSocketCreateFailed, err)
	}
	c.socket = socket
	c.hasHandle = false
	return nil
}

// Disconnect gracefully closes the connection, then sets the state to
// Disconnected and fires the state change itself, without waiting for a
// transport event.
func (c *Client) Disconnect() error {
	if !c.hasHandle {
		return fmt.Errorf("%w", omgpp.ErrNotConnected)
	}
	if err := c.socket.Close(c.handle, 0, "", false); err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrTransportError, err)
	}
	c.hasHandle = false
	c.state = omgpp.Disconnected
	c.emitStateChange(omgpp.Disconnected)
	return nil
}

// Process performs one cycle: poll low-level callbacks, poll up to maxN
// events, poll up to maxN messages. It returns the last error encountered
// during the cycle, or nil.
func (c *Client) Process(maxN int) error {
	release, ok := c.guard.Enter()
	if !ok {
		return omgpp.ErrReentrancyViolation
	}
	defer release()

	if c.socket == nil {
		return nil
	}

	c.socket.PollLowLevelCallbacks()

	var errs []error

	c.socket.PollEvents(maxN, func(e transport.Event) {
		if err := c.handleEvent(e); err != nil {
			errs = append(errs, err)
		}
	})

	c.socket.PollMessages(maxN, func(m transport.InMessage) {
		if err := c.handleMessage(m); err != nil {
			errs = append(errs, err)
		}
	})

	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs[:len(errs)-1] {
		c.log.Warn().Err(err).Msg("cycle error (not last, suppressed per aggregation policy)")
	}
	return errs[len(errs)-1]
}

func (c *Client) handleEvent(e transport.Event) error {
	switch {
	case e.OldState == transport.StateNone && e.NewState == transport.StateConnecting:
		c.handle = e.Handle
		c.hasHandle = true
		c.state = omgpp.Connecting
		c.emitStateChange(omgpp.Connecting)

	case e.OldState == transport.StateConnecting && e.NewState == transport.StateConnected:
		c.state = omgpp.ConnectedUnverified
		c.emitStateChange(omgpp.ConnectedUnverified)
		return c.sendAuth()

	case isTerminal(e.OldState, e.NewState):
		c.hasHandle = false
		c.socket = nil
		c.state = omgpp.Disconnected
		c.emitStateChange(omgpp.Disconnected)

	default:
		// ignore
	}
	return nil
}

func isTerminal(old, new_ transport.PeerState) bool {
	if old != transport.StateConnecting && old != transport.StateConnected {
		return false
	}
	switch new_ {
	case transport.StateClosedByPeer, transport.StateNone, transport.StateProblemDetectedLocally:
		return true
	default:
		return false
	}
}

func (c *Client) sendAuth() error {
	var credentials []string
	if c.cb.onAuthenticate != nil {
		credentials = c.cb.onAuthenticate(c, c.serverEndpoint)
	}
	if err := c.SendCommand("AUTH", 0, credentials); err != nil {
		return fmt.Errorf("%w: auth: %v", omgpp.ErrTransportError, err)
	}
	return nil
}

func (c *Client) emitStateChange(state omgpp.ConnectionState) {
	c.log.Info().Stringer("endpoint", c.serverEndpoint).Stringer("state", state).Msg("connection state changed")
	if c.cb.onConnectionChanged != nil {
		c.cb.onConnectionChanged(c, c.serverEndpoint, state)
	}
}

func (c *Client) handleMessage(m transport.InMessage) error {
	env, err := wire.Decode(m.Payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("decode failed")
		return fmt.Errorf("%w: %v", omgpp.ErrDecodeFailed, err)
	}

	switch {
	case env.Message != nil:
		if c.cb.onMessage != nil {
			c.cb.onMessage(c, c.serverEndpoint, env.Message.Type, env.Message.Data)
		}
	case env.RPCCall != nil:
		if c.cb.onRPC != nil {
			r := env.RPCCall
			c.cb.onRPC(c, c.serverEndpoint, r.Reliable, r.MethodID, r.RequestID, r.ArgType, r.ArgData)
		}
	case env.CmdRequest != nil:
		c.disp.Dispatch(command.Request{
			Cmd: env.CmdRequest.Cmd, RequestID: env.CmdRequest.RequestID, Args: env.CmdRequest.Args,
			Endpoint: c.serverEndpoint,
		})
	default:
		// ignorable envelope
	}
	return nil
}
