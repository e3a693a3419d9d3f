package client

import (
	"fmt"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/transport"
	"github.com/omgpp-project/omgpp/wire"
)

func (c *Client) sendRaw(flags transport.Flags, payload []byte) error {
	if !c.hasHandle {
		return fmt.Errorf("%w", omgpp.ErrNotConnected)
	}
	msg := c.socket.AllocateMessage(c.handle, flags, payload)
	results := c.socket.SendBatch([]transport.OutMessage{msg})
	return results[0].Err
}

// Send sends an unreliable application message to the server.
func (c *Client) Send(msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return c.sendRaw(transport.Unreliable, b)
}

// SendReliable sends a reliable application message to the server.
func (c *Client) SendReliable(msgType int64, data []byte) error {
	b, err := wire.EncodeMessage(wire.Message{Type: msgType, Data: data})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return c.sendRaw(transport.Reliable, b)
}

// CallRPC sends an RPC call to the server.
func (c *Client) CallRPC(reliable bool, methodID int64, requestID uint64, argType int64, argData []byte) error {
	b, err := wire.EncodeRPCCall(wire.RPCCall{Reliable: reliable, MethodID: methodID, RequestID: requestID, ArgType: argType, ArgData: argData})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return c.sendRaw(flagsFor(reliable), b)
}

// SendCommand sends a reliable command frame to the server.
func (c *Client) SendCommand(cmd string, requestID uint64, args []string) error {
	b, err := wire.EncodeCmdRequest(wire.CmdRequest{Cmd: cmd, RequestID: requestID, Args: args})
	if err != nil {
		return fmt.Errorf("%w: %v", omgpp.ErrEncodeFailed, err)
	}
	return c.sendRaw(transport.Reliable, b)
}

func flagsFor(reliable bool) transport.Flags {
	if reliable {
		return transport.Reliable
	}
	return transport.Unreliable
}
