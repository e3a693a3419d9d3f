package client

import (
	"net/netip"
	"testing"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

func newTestClient(t *testing.T, f *transport.MemFacade, port uint16) *Client {
	t.Helper()
	c, err := New(f, Config{ServerAddr: netip.MustParseAddr("::1"), ServerPort: port}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestConnectTwiceFails(t *testing.T) {
	f := transport.NewMemFacade()
	if _, err := f.Listen(netip.MustParseAddr("::1"), 2001); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := newTestClient(t, f, 2001)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Process(16) // consumes the Connecting event, sets state

	if err := c.Connect(); err == nil {
		t.Fatal("second Connect succeeded, want ErrAlreadyConnected")
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	f := transport.NewMemFacade()
	c := newTestClient(t, f, 2002)
	if err := c.Send(1, []byte("x")); err == nil {
		t.Fatal("Send before Connect succeeded, want ErrNotConnected")
	}
}

func TestAuthSentAutomaticallyOnConnectedUnverified(t *testing.T) {
	f := transport.NewMemFacade()
	serverSocket, err := f.Listen(netip.MustParseAddr("::1"), 2003)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	var credsUsed []string
	c := newTestClient(t, f, 2003)
	c.OnAuthenticate(func(_ *Client, _ omgpp.Endpoint) []string {
		credsUsed = []string{"token-abc"}
		return credsUsed
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Process(16) // Connecting

	var acceptHandle transport.Handle
	serverSocket.PollEvents(16, func(e transport.Event) { acceptHandle = e.Handle })
	if err := serverSocket.Accept(acceptHandle); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	c.Process(16) // ConnectedUnverified -> sends AUTH

	var authReceived []string
	serverSocket.PollMessages(16, func(m transport.InMessage) {
		env, err := wire.Decode(m.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.CmdRequest != nil && env.CmdRequest.Cmd == "AUTH" {
			authReceived = env.CmdRequest.Args
		}
	})

	if len(authReceived) != 1 || authReceived[0] != "token-abc" {
		t.Fatalf("server received AUTH args = %v, want [token-abc]", authReceived)
	}
	if c.State() != omgpp.ConnectedUnverified {
		t.Fatalf("client state = %v, want ConnectedUnverified", c.State())
	}
}

func TestAuthOkTransitionsToConnected(t *testing.T) {
	f := transport.NewMemFacade()
	serverSocket, err := f.Listen(netip.MustParseAddr("::1"), 2004)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := newTestClient(t, f, 2004)

	var states []omgpp.ConnectionState
	c.OnConnectionChanged(func(_ *Client, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		states = append(states, state)
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Process(16)

	var handle transport.Handle
	serverSocket.PollEvents(16, func(e transport.Event) { handle = e.Handle })
	serverSocket.Accept(handle)
	c.Process(16) // sends AUTH

	serverSocket.PollMessages(16, func(transport.InMessage) {})
	reply, err := wire.EncodeCmdRequest(wire.CmdRequest{Cmd: "AUTH", RequestID: 0, Args: []string{"ok"}})
	if err != nil {
		t.Fatalf("EncodeCmdRequest: %v", err)
	}
	msg := serverSocket.AllocateMessage(handle, transport.Reliable, reply)
	serverSocket.SendBatch([]transport.OutMessage{msg})

	c.Process(16)

	if c.State() != omgpp.Connected {
		t.Fatalf("client state = %v, want Connected", c.State())
	}
	want := []omgpp.ConnectionState{omgpp.Connecting, omgpp.ConnectedUnverified, omgpp.Connected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestDisconnectWithoutConnectionFails(t *testing.T) {
	f := transport.NewMemFacade()
	c := newTestClient(t, f, 2005)
	if err := c.Disconnect(); err == nil {
		t.Fatal("Disconnect without connection succeeded, want ErrNotConnected")
	}
}
