package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/omgpp-project/omgpp"
)

// QUICFacade backs the transport façade with github.com/quic-go/quic-go:
// the reliable channel is a QUIC stream per connection, the unreliable
// channel is QUIC's unreliable datagram extension. This stands in for
// the reference stack's external reliable-UDP library, since this
// module's target ecosystem has no equivalent GameNetworkingSockets
// binding; QUIC gives the same reliable+unreliable duality over UDP.
type QUICFacade struct {
	// TLSConfig is used for both listening and dialing. Tests and demo
	// binaries typically supply a self-signed config; this façade does
	// not generate certificates itself.
	TLSConfig *tls.Config
}

const quicALPN = "omgpp"

func (f *QUICFacade) quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 5 * time.Second,
	}
}

// Listen starts a QUIC listener bound to (bindAddr, port).
func (f *QUICFacade) Listen(bindAddr netip.Addr, port uint16) (Socket, error) {
	ln, err := quic.ListenAddr(netip.AddrPortFrom(bindAddr, port).String(), f.TLSConfig, f.quicConfig())
	if err != nil {
		return nil, omgpp.ErrSocketCreateFailed
	}
	s := newQUICSocket(omgpp.NewEndpoint(bindAddr, port))
	go s.acceptLoop(ln)
	return s, nil
}

// Connect dials a QUIC connection to (addr, port).
func (f *QUICFacade) Connect(addr netip.Addr, port uint16) (Socket, error) {
	ap := netip.AddrPortFrom(addr, port)
	conn, err := quic.DialAddr(context.Background(), ap.String(), f.TLSConfig, f.quicConfig())
	if err != nil {
		return nil, omgpp.ErrSocketCreateFailed
	}
	s := newQUICSocket(omgpp.Endpoint{})
	h := s.adopt(conn)

	s.mu.Lock()
	s.pendingEvents = append(s.pendingEvents, Event{Handle: h, Endpoint: EndpointFromNetAddr(conn.RemoteAddr()), OldState: StateNone, NewState: StateConnecting})
	s.mu.Unlock()

	go s.readLoop(h, conn)
	return s, nil
}

// EndpointFromNetAddr converts a net.Addr (as returned by quic-go) into
// an Endpoint, normalizing through netip the same way the rest of this
// module does.
func EndpointFromNetAddr(a net.Addr) omgpp.Endpoint {
	if udpAddr, ok := a.(*net.UDPAddr); ok {
		if ap, ok := netip.AddrFromSlice(udpAddr.IP); ok {
			return omgpp.NewEndpoint(ap, uint16(udpAddr.Port))
		}
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return omgpp.Endpoint{}
	}
	return omgpp.NewEndpoint(ap.Addr(), ap.Port())
}

type quicConn struct {
	conn     quic.Connection
	endpoint omgpp.Endpoint
	stream   quic.Stream // the single reliable stream used for framed sends/receives
	accepted bool
}

type quicSocket struct {
	local omgpp.Endpoint

	mu            sync.Mutex
	nextHandle    uint64
	conns         map[Handle]*quicConn
	pendingEvents []Event
	pendingMsgs   []InMessage
}

func newQUICSocket(local omgpp.Endpoint) *quicSocket {
	return &quicSocket{local: local, conns: make(map[Handle]*quicConn)}
}

func (s *quicSocket) adopt(conn quic.Connection) Handle {
	s.mu.Lock()
	s.nextHandle++
	h := Handle(s.nextHandle)
	s.conns[h] = &quicConn{conn: conn, endpoint: EndpointFromNetAddr(conn.RemoteAddr())}
	s.mu.Unlock()
	return h
}

func (s *quicSocket) acceptLoop(ln *quic.Listener) {
	for {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		h := s.adopt(conn)
		s.mu.Lock()
		s.pendingEvents = append(s.pendingEvents, Event{Handle: h, Endpoint: EndpointFromNetAddr(conn.RemoteAddr()), OldState: StateNone, NewState: StateConnecting})
		s.mu.Unlock()
		go s.readLoop(h, conn)
	}
}

// readLoop accepts the peer's reliable stream and drains both the
// reliable stream (length-prefixed frames) and unreliable datagrams into
// pendingMsgs, until the connection closes.
func (s *quicSocket) readLoop(h Handle, conn quic.Connection) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		s.mu.Lock()
		if qc, ok := s.conns[h]; ok {
			qc.stream = stream
		}
		s.mu.Unlock()

		for {
			var lenBuf [4]byte
			if _, err := io.ReadFull(stream, lenBuf[:]); err != nil {
				return
			}
			n := binary.BigEndian.Uint32(lenBuf[:])
			buf := make([]byte, n)
			if _, err := io.ReadFull(stream, buf); err != nil {
				return
			}
			s.mu.Lock()
			s.pendingMsgs = append(s.pendingMsgs, InMessage{Handle: h, Flags: Reliable, Payload: buf})
			s.mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		for {
			buf, err := conn.ReceiveDatagram(context.Background())
			if err != nil {
				return
			}
			s.mu.Lock()
			s.pendingMsgs = append(s.pendingMsgs, InMessage{Handle: h, Flags: Unreliable, Payload: buf})
			s.mu.Unlock()
		}
	}()

	wg.Wait()

	s.mu.Lock()
	ep := s.local
	if qc, ok := s.conns[h]; ok {
		ep = qc.endpoint
		delete(s.conns, h)
	}
	s.pendingEvents = append(s.pendingEvents, Event{Handle: h, Endpoint: ep, OldState: StateConnected, NewState: StateClosedByPeer})
	s.mu.Unlock()
}

func (s *quicSocket) PollLowLevelCallbacks() {}

func (s *quicSocket) PollEvents(maxN int, visitor func(Event)) int {
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

func (s *quicSocket) PollMessages(maxN int, visitor func(InMessage)) int {
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

// Accept opens the reliable stream for a connection dialed in and
// transitions it to Connected. quic-go itself has already completed the
// handshake by the time Connect/acceptLoop surface it, so Accept's only
// remaining job is to open the outbound half of the reliable stream.
func (s *quicSocket) Accept(h Handle) error {
	s.mu.Lock()
	qc, ok := s.conns[h]
	s.mu.Unlock()
	if !ok {
		return omgpp.ErrUnknownPeer
	}

	stream, err := qc.conn.OpenStreamSync(context.Background())
	if err != nil {
		return omgpp.ErrTransportError
	}

	s.mu.Lock()
	qc.stream = stream
	qc.accepted = true
	s.pendingEvents = append(s.pendingEvents, Event{Handle: h, Endpoint: qc.endpoint, OldState: StateConnecting, NewState: StateConnected})
	s.mu.Unlock()
	return nil
}

func (s *quicSocket) Close(h Handle, reasonCode uint32, reasonString string, _ bool) error {
	s.mu.Lock()
	qc, ok := s.conns[h]
	if ok {
		delete(s.conns, h)
	}
	s.mu.Unlock()
	if !ok {
		return omgpp.ErrUnknownPeer
	}
	return qc.conn.CloseWithError(quic.ApplicationErrorCode(reasonCode), reasonString)
}

func (s *quicSocket) AllocateMessage(h Handle, flags Flags, payload []byte) OutMessage {
	return OutMessage{Handle: h, Flags: flags, Payload: payload}
}

func (s *quicSocket) SendBatch(msgs []OutMessage) []SendResult {
	results := make([]SendResult, len(msgs))
	for i, m := range msgs {
		s.mu.Lock()
		qc, ok := s.conns[m.Handle]
		s.mu.Unlock()
		if !ok {
			results[i] = SendResult{Err: omgpp.ErrUnknownPeer}
			continue
		}

		var err error
		switch m.Flags {
		case Reliable:
			if qc.stream == nil {
				err = omgpp.ErrTransportError
				break
			}
			var lenBuf [4]byte
			binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Payload)))
			if _, werr := qc.stream.Write(append(lenBuf[:], m.Payload...)); werr != nil {
				err = omgpp.ErrTransportError
			}
		default:
			if serr := qc.conn.SendDatagram(m.Payload); serr != nil {
				err = omgpp.ErrTransportError
			}
		}

		if err != nil {
			results[i] = SendResult{Err: err}
		} else {
			results[i] = SendResult{SequenceNo: uint64(i + 1)}
		}
	}
	return results
}

func (s *quicSocket) LocalEndpoint() omgpp.Endpoint {
	return s.local
}

func (s *quicSocket) CloseSocket() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[Handle]*quicConn)
	s.mu.Unlock()

	for _, qc := range conns {
		qc.conn.CloseWithError(0, "")
	}
	return nil
}
