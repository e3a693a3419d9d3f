package server

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/client"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

func newTestServer(t *testing.T, f *transport.MemFacade, port uint16, cfg Config) *Server {
	t.Helper()
	cfg.BindAddr = netip.MustParseAddr("::1")
	cfg.Port = port
	if cfg.UnverifiedExpiry == 0 {
		cfg.UnverifiedExpiry = 3 * time.Second
	}
	s, err := New(f, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func newTestClient(t *testing.T, f *transport.MemFacade, port uint16) *client.Client {
	t.Helper()
	c, err := client.New(f, client.Config{ServerAddr: netip.MustParseAddr("::1"), ServerPort: port}, zerolog.Nop())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func runUntilConnected(t *testing.T, s *Server, c *client.Client, cycles int) {
	t.Helper()
	for i := 0; i < cycles; i++ {
		if err := s.Process(16); err != nil {
			t.Fatalf("server Process: %v", err)
		}
		if err := c.Process(16); err != nil {
			t.Fatalf("client Process: %v", err)
		}
		if c.State() == omgpp.Connected {
			return
		}
	}
	t.Fatalf("client never reached Connected after %d cycles (state=%v)", cycles, c.State())
}

// S1: admission success.
func TestAdmissionSuccessAndMessageDelivery(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1001, Config{})

	var serverStates []omgpp.ConnectionState
	s.OnConnectionChanged(func(_ *Server, _ omgpp.Identity, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		serverStates = append(serverStates, state)
	})

	c := newTestClient(t, f, 1001)
	var clientStates []omgpp.ConnectionState
	c.OnConnectionChanged(func(_ *client.Client, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		clientStates = append(clientStates, state)
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var gotSender omgpp.Endpoint
	var gotType int64
	var gotData []byte
	c.OnMessage(func(_ *client.Client, sender omgpp.Endpoint, msgType int64, data []byte) {
		gotSender, gotType, gotData = sender, msgType, data
	})

	runUntilConnected(t, s, c, 10)

	expect := []omgpp.ConnectionState{omgpp.Connecting, omgpp.ConnectedUnverified, omgpp.Connected}
	if !statesEqual(serverStates, expect) {
		t.Fatalf("server states = %v, want %v", serverStates, expect)
	}
	if !statesEqual(clientStates, expect) {
		t.Fatalf("client states = %v, want %v", clientStates, expect)
	}

	clients := s.Tracker().ActiveClients()
	if len(clients) != 1 {
		t.Fatalf("ActiveClients = %v, want exactly one", clients)
	}
	if err := s.Send(clients[0].Identity, 7, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := c.Process(16); err != nil {
		t.Fatalf("client Process: %v", err)
	}

	if gotType != 7 || string(gotData) != "hi" || gotSender != c.ServerEndpoint() {
		t.Fatalf("client on_message got (sender=%v, type=%d, data=%q)", gotSender, gotType, gotData)
	}
}

func statesEqual(got, want []omgpp.ConnectionState) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// S2: admission refusal.
func TestAdmissionRefusal(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1002, Config{})
	s.OnConnectRequested(func(*Server, omgpp.Endpoint) bool { return false })

	c := newTestClient(t, f, 1002)
	var closedReason string
	var sawClosed bool
	c.OnConnectionChanged(func(_ *client.Client, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		if state == omgpp.Disconnected {
			sawClosed = true
		}
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.Process(16)
		c.Process(16)
	}

	if !sawClosed {
		t.Fatalf("client never observed Disconnected after refusal")
	}
	_ = closedReason
	if c.State() == omgpp.Connected || c.State() == omgpp.ConnectedUnverified {
		t.Fatalf("client state = %v, want not admitted", c.State())
	}
}

// S3: unverified expiry.
func TestUnverifiedExpiry(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1003, Config{UnverifiedExpiry: 10 * time.Millisecond})

	// connect at the transport level without ever performing AUTH
	socket, err := f.Connect(netip.MustParseAddr("::1"), 1003)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s.Process(16) // drains Connecting, calls Accept
	s.Process(16) // tracks the peer as ConnectedUnverified
	socket.PollEvents(16, func(transport.Event) {})

	time.Sleep(20 * time.Millisecond)
	s.Process(16) // should sweep expired unverified

	if got := len(s.Tracker().ActiveClients()); got != 0 {
		t.Fatalf("ActiveClients after expiry = %d, want 0", got)
	}

	var clientEvents []transport.Event
	socket.PollEvents(16, func(e transport.Event) { clientEvents = append(clientEvents, e) })
	if len(clientEvents) != 1 || clientEvents[0].NewState != transport.StateClosedByPeer {
		t.Fatalf("client transport events = %+v, want one ClosedByPeer", clientEvents)
	}
}

// S4: broadcast fan-out.
func TestBroadcastFanOut(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1004, Config{})

	var clients []*client.Client
	var received [][2]interface{}
	for i := 0; i < 3; i++ {
		c := newTestClient(t, f, 1004)
		idx := i
		c.OnMessage(func(_ *client.Client, _ omgpp.Endpoint, msgType int64, data []byte) {
			received = append(received, [2]interface{}{idx, string(data)})
		})
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
		clients = append(clients, c)
	}

	for i := 0; i < 10; i++ {
		s.Process(16)
		for _, c := range clients {
			c.Process(16)
		}
	}
	for _, c := range clients {
		if c.State() != omgpp.Connected {
			t.Fatalf("client state = %v, want Connected", c.State())
		}
	}

	if err := s.Broadcast(42, []byte("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, c := range clients {
		c.Process(16)
	}

	if len(received) != 3 {
		t.Fatalf("received %d messages, want 3: %v", len(received), received)
	}
	for _, r := range received {
		if r[1] != "x" {
			t.Fatalf("received %v, want data=x", r)
		}
	}
}

// S5: RPC round trip.
func TestRPCRoundTrip(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1005, Config{})

	var gotMethodID int64
	var gotReqID uint64
	var gotArg []byte
	var gotIdentity omgpp.Identity
	s.OnRPC(func(_ *Server, identity omgpp.Identity, _ omgpp.Endpoint, reliable bool, methodID int64, requestID uint64, argType int64, argData []byte) {
		gotIdentity, gotMethodID, gotReqID, gotArg = identity, methodID, requestID, argData
		s.CallRPC(identity, true, methodID, requestID, 1, []byte("r"))
	})

	c := newTestClient(t, f, 1005)
	var clientGotArg []byte
	c.OnRPC(func(_ *client.Client, _ omgpp.Endpoint, reliable bool, methodID int64, requestID uint64, argType int64, argData []byte) {
		clientGotArg = argData
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	runUntilConnected(t, s, c, 10)

	if err := c.CallRPC(true, 9, 123, 0, []byte("q")); err != nil {
		t.Fatalf("CallRPC: %v", err)
	}
	s.Process(16)
	c.Process(16)

	if gotMethodID != 9 || gotReqID != 123 || string(gotArg) != "q" || gotIdentity.IsZero() {
		t.Fatalf("server on_rpc got (method=%d, req=%d, arg=%q, identity=%v)", gotMethodID, gotReqID, gotArg, gotIdentity)
	}
	if string(clientGotArg) != "r" {
		t.Fatalf("client on_rpc got arg=%q, want r", clientGotArg)
	}
}

// S6: pre-admission gating.
func TestPreAdmissionMessageGating(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 1006, Config{})

	messageFired := false
	s.OnMessage(func(*Server, omgpp.Identity, omgpp.Endpoint, int64, []byte) { messageFired = true })

	socket, err := f.Connect(netip.MustParseAddr("::1"), 1006)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Process(16) // accepts; the next cycle tracks the peer as ConnectedUnverified
	var h transport.Handle
	socket.PollEvents(16, func(e transport.Event) { h = e.Handle })

	// send an application message frame directly at the transport level,
	// before ever performing AUTH
	env, err := wire.EncodeMessage(wire.Message{Type: 1, Data: []byte("too early")})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	msg := socket.AllocateMessage(h, transport.Reliable, env)
	socket.SendBatch([]transport.OutMessage{msg})
	s.Process(16)

	if messageFired {
		t.Fatal("on_message fired for an unverified peer")
	}
}
