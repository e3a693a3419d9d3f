// Package server implements the server endpoint core: it owns a
// transport socket, a connection tracker, a callback table, and a
// command dispatcher; drives the per-cycle polling loop; and implements
// the connection-lifecycle state machine and the admission handshake
// described by the networking core this module implements.
package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
	"github.com/omgpp-project/omgpp/internal/reentry"
	"github.com/omgpp-project/omgpp/metricsx"
	"github.com/omgpp-project/omgpp/tracker"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

// Server is the server endpoint core. A Server is driven by exactly one
// task, which must call Process repeatedly (typically at the
// application's frame rate); none of its methods are safe to call
// concurrently from multiple goroutines.
type Server struct {
	cfg    Config
	socket transport.Socket
	tr     *tracker.Tracker
	disp   *command.Dispatcher
	cb     *callbacks
	log    zerolog.Logger
	guard  reentry.Guard
	audit  AuditLog

	geo         *geoIPMgr
	peerMetrics *metricsx.ConnectedPeers

	verify func(credentials []string, endpoint omgpp.Endpoint) bool
}

// New constructs a Server bound via facade to cfg.BindAddr:cfg.Port.
func New(facade transport.Facade, cfg Config, logger zerolog.Logger) (*Server, error) {
	socket, err := facade.Listen(cfg.BindAddr, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", omgpp.ErrSocketCreateFailed, err)
	}

	s := &Server{
		cfg:    cfg,
		socket: socket,
		tr:     tracker.New(cfg.trackerOptions()...),
		cb:     defaultCallbacks(),
		log:    logger.With().Str("component", "server").Logger(),
		verify: defaultVerify,
	}
	if cfg.MinClientVersion != "" {
		s.verify = minVersionVerify(cfg.MinClientVersion)
	}
	if cfg.GeoIPDB != "" {
		if err := s.enableGeoMetrics(cfg.GeoIPDB); err != nil {
			return nil, fmt.Errorf("load geoip database: %w", err)
		}
	}
	s.disp = command.New(s.tr.State)
	s.registerBuiltins()
	return s, nil
}

// Close releases resources held by the server that Process does not
// otherwise own, such as an open GeoIP database file. The socket itself
// is closed by the transport facade, not here.
func (s *Server) Close() error {
	if s.geo != nil {
		return s.geo.Close()
	}
	return nil
}

// Tracker exposes the underlying connection tracker for read-only
// inspection (e.g. by metrics or an audit log sink).
func (s *Server) Tracker() *tracker.Tracker { return s.tr }

// RegisterCommand adds a named command handler to the dispatcher.
func (s *Server) RegisterCommand(name string, authRequired bool, h command.Handler) error {
	release, ok := s.guard.Enter()
	if !ok {
		return omgpp.ErrReentrancyViolation
	}
	defer release()
	return s.disp.Register(name, authRequired, h)
}

// Process performs one cycle: poll low-level callbacks, poll up to maxN
// events, poll up to maxN messages, then sweep expired unverified peers.
// It returns the last error encountered during the cycle (decode or
// per-recipient send failures do not abort the cycle), or nil.
func (s *Server) Process(maxN int) error {
	release, ok := s.guard.Enter()
	if !ok {
		return omgpp.ErrReentrancyViolation
	}
	defer release()

	s.socket.PollLowLevelCallbacks()

	var errs []error

	s.socket.PollEvents(maxN, func(e transport.Event) {
		if err := s.handleEvent(e); err != nil {
			errs = append(errs, err)
		}
	})

	s.socket.PollMessages(maxN, func(m transport.InMessage) {
		if err := s.handleMessage(m); err != nil {
			errs = append(errs, err)
		}
	})

	s.sweepExpired()
	s.refreshPeerMetrics()

	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs[:len(errs)-1] {
		s.log.Warn().Err(err).Msg("cycle error (not last, suppressed per aggregation policy)")
	}
	return errs[len(errs)-1]
}

func (s *Server) handleEvent(e transport.Event) error {
	identity := omgpp.IdentityFromEndpoint(e.Endpoint)

	switch {
	case e.OldState == transport.StateNone && e.NewState == transport.StateConnecting:
		s.emitStateChange(identity, e.Endpoint, omgpp.Connecting)
		s.audited(identity, e.Endpoint, AuditConnecting, "")
		if s.cb.onConnectRequested(s, e.Endpoint) {
			if err := s.socket.Accept(e.Handle); err != nil {
				return fmt.Errorf("%w: accept: %v", omgpp.ErrTransportError, err)
			}
		} else {
			s.audited(identity, e.Endpoint, AuditRejected, "You are not allowed to connect")
			if err := s.socket.Close(e.Handle, 0, "You are not allowed to connect", false); err != nil {
				return fmt.Errorf("%w: close: %v", omgpp.ErrTransportError, err)
			}
		}

	case e.OldState == transport.StateConnecting && e.NewState == transport.StateConnected:
		s.tr.TrackUnverified(identity, e.Endpoint, e.Handle, time.Now())
		s.emitStateChange(identity, e.Endpoint, omgpp.ConnectedUnverified)

	case isTerminal(e.OldState, e.NewState):
		s.tr.TrackDisconnected(identity)
		s.emitStateChange(identity, e.Endpoint, omgpp.Disconnected)
		s.audited(identity, e.Endpoint, AuditDisconnected, "")

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

func (s *Server) emitStateChange(id omgpp.Identity, ep omgpp.Endpoint, state omgpp.ConnectionState) {
	s.log.Info().Stringer("identity", id).Stringer("endpoint", ep).Stringer("state", state).Msg("connection state changed")
	if s.cb.onConnectionChanged != nil {
		s.cb.onConnectionChanged(s, id, ep, state)
	}
}

func (s *Server) handleMessage(m transport.InMessage) error {
	sender, ok := s.tr.ClientByConnection(m.Handle)
	if !ok {
		return nil // unknown sender: drop
	}
	endpoint, _ := s.tr.EndpointFor(sender)

	env, err := wire.Decode(m.Payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("decode failed")
		return fmt.Errorf("%w: %v", omgpp.ErrDecodeFailed, err)
	}

	isVerified := s.tr.State(sender) == omgpp.Connected

	switch {
	case env.Message != nil:
		if isVerified && s.cb.onMessage != nil {
			s.cb.onMessage(s, sender, endpoint, env.Message.Type, env.Message.Data)
		}
	case env.RPCCall != nil:
		if isVerified && s.cb.onRPC != nil {
			r := env.RPCCall
			s.cb.onRPC(s, sender, endpoint, r.Reliable, r.MethodID, r.RequestID, r.ArgType, r.ArgData)
		}
	case env.CmdRequest != nil:
		s.disp.Dispatch(command.Request{
			Cmd: env.CmdRequest.Cmd, RequestID: env.CmdRequest.RequestID, Args: env.CmdRequest.Args,
			Identity: sender, Endpoint: endpoint,
		})
	default:
		// ignorable envelope
	}
	return nil
}

func (s *Server) sweepExpired() {
	for _, h := range s.tr.ExpiredUnverified(time.Now()) {
		id, ok := s.tr.ClientByConnection(h)
		if !ok {
			continue
		}
		ep, _ := s.tr.EndpointFor(id)
		if err := s.socket.Close(h, 0, "Unverified", false); err != nil {
			s.log.Warn().Err(err).Msg("close expired unverified connection")
		}
		s.tr.TrackDisconnected(id)
		s.emitStateChange(id, ep, omgpp.Disconnected)
		s.audited(id, ep, AuditExpired, "Unverified")
	}
}

// Disconnect gracefully closes identity's connection with reason code 0,
// then marks the peer Disconnected in the tracker and fires the state
// change itself, without waiting for a transport event. The peer goes
// straight to Disconnected; no Disconnecting state is reported.
func (s *Server) Disconnect(identity omgpp.Identity) error {
	h, ok := s.tr.ConnectionFor(identity)
	if !ok {
		return fmt.Errorf("%w: %s", omgpp.ErrUnknownPeer, identity)
	}
	ep, _ := s.tr.EndpointFor(identity)
	if err := s.socket.Close(h, 0, "", false); err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrTransportError, err)
	}
	s.tr.TrackDisconnected(identity)
	s.emitStateChange(identity, ep, omgpp.Disconnected)
	return nil
}
