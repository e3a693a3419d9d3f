package server

import (
	"net/netip"
	"testing"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

// Process(maxN) must not visit more than maxN pending events, or more
// than maxN pending messages, in a single cycle.
func TestProcessBoundsEventsToMaxN(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 2001, Config{})

	for i := 0; i < 5; i++ {
		if _, err := f.Connect(netip.MustParseAddr("::1"), 2001); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
	}

	var seen int
	s.OnConnectionChanged(func(*Server, omgpp.Identity, omgpp.Endpoint, omgpp.ConnectionState) {
		seen++
	})

	if err := s.Process(2); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if seen != 2 {
		t.Fatalf("events visited in one cycle = %d, want 2", seen)
	}

	// The second cycle visits the 3 remaining Connecting events plus the
	// 2 Connecting→Connected events queued by the first cycle's accepts.
	if err := s.Process(16); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if seen != 7 {
		t.Fatalf("events visited after draining = %d, want 7", seen)
	}
}

// An idle cycle (nothing pending) returns nil and invokes no callback.
func TestProcessIdleCycleReturnsNil(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 2002, Config{})

	called := false
	s.OnConnectionChanged(func(*Server, omgpp.Identity, omgpp.Endpoint, omgpp.ConnectionState) {
		called = true
	})
	s.OnMessage(func(*Server, omgpp.Identity, omgpp.Endpoint, int64, []byte) {
		called = true
	})

	if err := s.Process(16); err != nil {
		t.Fatalf("Process on idle socket = %v, want nil", err)
	}
	if called {
		t.Fatal("a callback fired on an idle cycle")
	}
}

// An unregistered command name is dropped without reaching any handler.
func TestUnknownCommandDroppedSilently(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 2003, Config{})

	socket, err := f.Connect(netip.MustParseAddr("::1"), 2003)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Process(16)
	var h transport.Handle
	socket.PollEvents(16, func(e transport.Event) { h = e.Handle })

	env, err := wire.EncodeCmdRequest(wire.CmdRequest{Cmd: "NOSUCHCOMMAND", RequestID: 0, Args: nil})
	if err != nil {
		t.Fatalf("EncodeCmdRequest: %v", err)
	}
	msg := socket.AllocateMessage(h, transport.Reliable, env)
	socket.SendBatch([]transport.OutMessage{msg})

	if err := s.Process(16); err != nil {
		t.Fatalf("Process: %v", err)
	}
	// no panic, no crash: the dispatcher silently ignored the unknown name.
}

// A command registered with auth_required=true must not invoke its
// handler for a peer that has not completed AUTH, even though the
// envelope itself is well-formed and reaches the dispatcher.
func TestAuthGatedCommandDroppedForUnverifiedPeer(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 2004, Config{})

	fired := false
	if err := s.RegisterCommand("PRIVILEGED", true, func(command.Request) { fired = true }); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}

	socket, err := f.Connect(netip.MustParseAddr("::1"), 2004)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Process(16) // accepts; the next cycle tracks the peer as ConnectedUnverified, never performs AUTH
	var h transport.Handle
	socket.PollEvents(16, func(e transport.Event) { h = e.Handle })

	env, err := wire.EncodeCmdRequest(wire.CmdRequest{Cmd: "PRIVILEGED", RequestID: 0, Args: nil})
	if err != nil {
		t.Fatalf("EncodeCmdRequest: %v", err)
	}
	msg := socket.AllocateMessage(h, transport.Reliable, env)
	socket.SendBatch([]transport.OutMessage{msg})

	if err := s.Process(16); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if fired {
		t.Fatal("auth_required handler fired for an unverified peer")
	}
}
