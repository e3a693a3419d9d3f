// Package command implements the named-command handler registry shared
// by the server and client endpoint cores: register a handler under a
// unique name with an "auth required" flag, and dispatch an incoming
// command frame to it, applying the auth gate before the handler ever
// runs.
package command

import (
	"fmt"

	"github.com/omgpp-project/omgpp"
)

// Request is a decoded command frame together with the sender context
// the handler needs to reply.
type Request struct {
	Cmd       string
	RequestID uint64
	Args      []string
	Identity  omgpp.Identity
	Endpoint  omgpp.Endpoint
}

// Handler processes a dispatched command request.
type Handler func(req Request)

type entry struct {
	authRequired bool
	handler      Handler
}

// Dispatcher holds no mutable state beyond its registry: a map from
// command name to handler plus its auth-required flag.
type Dispatcher struct {
	handlers map[string]entry
	// stateOf reports the current ConnectionState of an identity; set by
	// the owning endpoint core so the auth gate can consult live state
	// without the dispatcher depending on the tracker package directly.
	stateOf func(omgpp.Identity) omgpp.ConnectionState
}

// New constructs an empty Dispatcher. stateOf is consulted by Dispatch to
// decide whether an auth_required command may run; it is typically the
// owning endpoint core's tracker state lookup.
func New(stateOf func(omgpp.Identity) omgpp.ConnectionState) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]entry),
		stateOf:  stateOf,
	}
}

// Register adds a named handler. It returns ErrAlreadyRegistered,
// wrapping the command name, if name is already registered.
func (d *Dispatcher) Register(name string, authRequired bool, h Handler) error {
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("%w: %q", omgpp.ErrAlreadyRegistered, name)
	}
	d.handlers[name] = entry{authRequired: authRequired, handler: h}
	return nil
}

// Dispatch looks up req.Cmd. If absent, it is silently dropped. If
// present and its auth_required flag is set while the sender's state is
// not Connected, it is silently dropped. Otherwise the handler is
// invoked.
func (d *Dispatcher) Dispatch(req Request) {
	e, ok := d.handlers[req.Cmd]
	if !ok {
		return
	}
	if e.authRequired && d.stateOf(req.Identity) != omgpp.Connected {
		return
	}
	e.handler(req)
}
