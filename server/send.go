package server

import (
	"fmt"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

func (s *Server) sendTo(identity omgpp.Identity, flags transport.Flags, payload []byte) error {
	h, ok := s.tr.ConnectionFor(identity)
	if !ok {
		return fmt.Errorf("%w: %s", omgpp.ErrUnknownPeer, identity)
	}
	msg := s.socket.AllocateMessage(h, flags, payload)
	results := s.socket.SendBatch([]transport.OutMessage{msg})
	return results[0].Err
}

// Send sends an unreliable application message to identity.
func (s *Server) Send(identity omgpp.Identity, msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return s.sendTo(identity, transport.Unreliable, b)
}

// SendReliable sends a reliable application message to identity.
func (s *Server) SendReliable(identity omgpp.Identity, msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return s.sendTo(identity, transport.Reliable, b)
}

func (s *Server) broadcast(flags transport.Flags, payload []byte) {
	handles := s.tr.ActiveConnections()
	if len(handles) == 0 {
		return
	}
	msgs := make([]transport.OutMessage, len(handles))
	for i, h := range handles {
		msgs[i] = s.socket.AllocateMessage(h, flags, payload)
	}
	results := s.socket.SendBatch(msgs)
	for i, r := range results {
		if r.Err != nil {
			s.log.Warn().Err(r.Err).Uint64("handle", uint64(handles[i])).Msg("broadcast send failed for recipient")
		}
	}
}

// Broadcast sends an unreliable application message to every verified
// peer.
func (s *Server) Broadcast(msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	s.broadcast(transport.Unreliable, b)
	return nil
}

// BroadcastReliable sends a reliable application message to every
// verified peer.
func (s *Server) BroadcastReliable(msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	s.broadcast(transport.Reliable, b)
	return nil
}

// CallRPC sends an RPC call to identity.
func (s *Server) CallRPC(identity omgpp.Identity, reliable bool, methodID int64, requestID uint64, argType int64, argData []byte) error {
	b, err := wire.EncodeRPCCall(wire.RPCCall{Reliable: reliable, MethodID: methodID, RequestID: requestID, ArgType: argType, ArgData: argData})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return s.sendTo(identity, flagsFor(reliable), b)
}

// CallRPCBroadcast sends an RPC call to every verified peer.
func (s *Server) CallRPCBroadcast(reliable bool, methodID int64, requestID uint64, argType int64, argData []byte) error {
	b, err := wire.EncodeRPCCall(wire.RPCCall{Reliable: reliable, MethodID: methodID, RequestID: requestID, ArgType: argType, ArgData: argData})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	s.broadcast(flagsFor(reliable), b)
	return nil
}

// SendCommand sends a reliable command frame to identity.
func (s *Server) SendCommand(identity omgpp.Identity, cmd string, requestID uint64, args []string) error {
	b, err := wire.EncodeCmdRequest(wire.CmdRequest{Cmd: cmd, RequestID: requestID, Args: args})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return s.sendTo(identity, transport.Reliable, b)
}

func flagsFor(reliable bool) transport.Flags {
	if reliable {
		return transport.Reliable
	}
	return transport.Unreliable
}
