package transport

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/omgpp-project/omgpp"
)

// MemFacade is an in-process loopback Facade: sockets created from the
// same MemFacade can connect to each other without touching a real
// network. It exists so that the endpoint-core and tracker tests in this
// module can exercise the full state machine deterministically, the way
// the reference implementation's own test suite drives its transport
// through an in-memory harness rather than real sockets.
type MemFacade struct {
	mu       sync.Mutex
	handles  uint64
	bound    map[string]*memSocket // bindAddr:port -> listening socket
}

// NewMemFacade constructs an empty MemFacade.
func NewMemFacade() *MemFacade {
	return &MemFacade{bound: make(map[string]*memSocket)}
}

func (f *MemFacade) nextHandle() Handle {
	return Handle(atomic.AddUint64(&f.handles, 1))
}

// Listen registers a listening socket at (bindAddr, port).
func (f *MemFacade) Listen(bindAddr netip.Addr, port uint16) (Socket, error) {
	ep := omgpp.NewEndpoint(bindAddr, port)
	s := newMemSocket(f, ep)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.bound[ep.String()]; exists {
		return nil, omgpp.ErrSocketCreateFailed
	}
	f.bound[ep.String()] = s
	return s, nil
}

// Connect dials a socket previously registered via Listen.
func (f *MemFacade) Connect(addr netip.Addr, port uint16) (Socket, error) {
	remoteEP := omgpp.NewEndpoint(addr, port)

	f.mu.Lock()
	server, ok := f.bound[remoteEP.String()]
	f.mu.Unlock()
	if !ok {
		return nil, omgpp.ErrSocketCreateFailed
	}

	clientEP := omgpp.NewEndpoint(addr, nextEphemeralPort())
	client := newMemSocket(f, clientEP)

	serverHandle := f.nextHandle()
	clientHandle := f.nextHandle()

	peer := &memPeer{
		clientSock: client, clientHandle: clientHandle, clientEP: clientEP,
		serverSock: server, serverHandle: serverHandle, serverEP: remoteEP,
	}
	client.addPeer(clientHandle, peer, clientEP, serverHandle)
	server.addPeer(serverHandle, peer, remoteEP, clientHandle)

	server.mu.Lock()
	server.pendingEvents = append(server.pendingEvents, Event{Handle: serverHandle, Endpoint: clientEP, OldState: StateNone, NewState: StateConnecting})
	server.mu.Unlock()

	client.mu.Lock()
	client.pendingEvents = append(client.pendingEvents, Event{Handle: clientHandle, Endpoint: remoteEP, OldState: StateNone, NewState: StateConnecting})
	client.mu.Unlock()

	return client, nil
}

var ephemeralPort uint32 = 40000

func nextEphemeralPort() uint16 {
	return uint16(atomic.AddUint32(&ephemeralPort, 1))
}

// memPeer links the two Sockets' views of a single logical connection so
// that accepting, closing, or sending on one side is visible to the
// other.
type memPeer struct {
	clientSock   *memSocket
	clientHandle Handle
	clientEP     omgpp.Endpoint

	serverSock   *memSocket
	serverHandle Handle
	serverEP     omgpp.Endpoint

	mu     sync.Mutex
	closed bool
}

func (p *memPeer) other(self *memSocket) (*memSocket, Handle) {
	if self == p.clientSock {
		return p.serverSock, p.serverHandle
	}
	return p.clientSock, p.clientHandle
}

func (p *memPeer) selfHandle(self *memSocket) Handle {
	if self == p.clientSock {
		return p.clientHandle
	}
	return p.serverHandle
}

type peerRecord struct {
	peer     *memPeer
	endpoint omgpp.Endpoint
	accepted bool
}

// memSocket is the Socket half owned by one side of a memPeer connection.
type memSocket struct {
	facade *MemFacade
	local  omgpp.Endpoint

	mu            sync.Mutex
	peers         map[Handle]*peerRecord
	pendingEvents []Event
	pendingMsgs   []InMessage
}

func newMemSocket(f *MemFacade, local omgpp.Endpoint) *memSocket {
	return &memSocket{facade: f, local: local, peers: make(map[Handle]*peerRecord)}
}

func (s *memSocket) addPeer(h Handle, p *memPeer, ep omgpp.Endpoint, _ Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[h] = &peerRecord{peer: p, endpoint: ep}
}

func (s *memSocket) PollLowLevelCallbacks() {}

func (s *memSocket) PollEvents(maxN int, visitor func(Event)) int {
	s.mu.Lock()
	n := len(s.pendingEvents)
	if n > maxN {
		n = maxN
	}
	batch := append([]Event(nil), s.pendingEvents[:n]...)
	s.pendingEvents = s.pendingEvents[n:]
	s.mu.Unlock()

	for _, e := range batch {
		visitor(e)
	}
	return len(batch)
}

func (s *memSocket) PollMessages(maxN int, visitor func(InMessage)) int {
	s.mu.Lock()
	n := len(s.pendingMsgs)
	if n > maxN {
		n = maxN
	}
	batch := append([]InMessage(nil), s.pendingMsgs[:n]...)
	s.pendingMsgs = s.pendingMsgs[n:]
	s.mu.Unlock()

	for _, m := range batch {
		visitor(m)
	}
	return len(batch)
}

func (s *memSocket) Accept(h Handle) error {
	s.mu.Lock()
	rec, ok := s.peers[h]
	s.mu.Unlock()
	if !ok {
		return omgpp.ErrUnknownPeer
	}
	rec.accepted = true

	other, otherHandle := rec.peer.other(s)
	other.mu.Lock()
	other.pendingEvents = append(other.pendingEvents, Event{Handle: otherHandle, Endpoint: other.peers[otherHandle].endpoint, OldState: StateConnecting, NewState: StateConnected})
	other.mu.Unlock()

	s.mu.Lock()
	s.pendingEvents = append(s.pendingEvents, Event{Handle: h, Endpoint: rec.endpoint, OldState: StateConnecting, NewState: StateConnected})
	s.mu.Unlock()
	return nil
}

func (s *memSocket) Close(h Handle, _ uint32, reasonString string, _ bool) error {
	s.mu.Lock()
	rec, ok := s.peers[h]
	if ok {
		delete(s.peers, h)
	}
	s.mu.Unlock()
	if !ok {
		return omgpp.ErrUnknownPeer
	}

	rec.peer.mu.Lock()
	alreadyClosed := rec.peer.closed
	rec.peer.closed = true
	rec.peer.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	other, otherHandle := rec.peer.other(s)
	other.mu.Lock()
	if orec, ok := other.peers[otherHandle]; ok {
		delete(other.peers, otherHandle)
		other.pendingEvents = append(other.pendingEvents, Event{Handle: otherHandle, Endpoint: orec.endpoint, OldState: StateConnected, NewState: StateClosedByPeer})
	}
	other.mu.Unlock()
	_ = reasonString // surfaced out-of-band in a real transport; unused in the loopback
	return nil
}

func (s *memSocket) AllocateMessage(h Handle, flags Flags, payload []byte) OutMessage {
	return OutMessage{Handle: h, Flags: flags, Payload: payload}
}

func (s *memSocket) SendBatch(msgs []OutMessage) []SendResult {
	results := make([]SendResult, len(msgs))
	for i, m := range msgs {
		s.mu.Lock()
		rec, ok := s.peers[m.Handle]
		s.mu.Unlock()
		if !ok {
			results[i] = SendResult{Err: omgpp.ErrUnknownPeer}
			continue
		}
		other, otherHandle := rec.peer.other(s)
		other.mu.Lock()
		other.pendingMsgs = append(other.pendingMsgs, InMessage{Handle: otherHandle, Flags: m.Flags, Payload: append([]byte(nil), m.Payload...)})
		other.mu.Unlock()
		results[i] = SendResult{SequenceNo: uint64(i + 1)}
	}
	return results
}

func (s *memSocket) LocalEndpoint() omgpp.Endpoint {
	return s.local
}

func (s *memSocket) CloseSocket() error {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.peers))
	for h := range s.peers {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = s.Close(h, 0, "", false)
	}
	return nil
}
