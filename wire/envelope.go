// Package wire implements the single binary envelope that multiplexes the
// three message variants used by the networking core (application
// messages, RPC calls, and command requests) over one wire format.
//
// The envelope is a length-delimited, tag-numbered binary encoding,
// byte-compatible with the protocol buffers wire format:
//
//	message Envelope {
//	    oneof data {
//	        Message    message     = 1;
//	        RpcCall    rpc_call    = 2;
//	        CmdRequest cmd_request = 3;
//	    }
//	}
//	message Message    { int64 type = 1; bytes data = 2; }
//	message RpcCall    { bool reliable = 1; int64 method_id = 2; uint64 request_id = 3; int64 arg_type = 4; bytes arg_data = 5; }
//	message CmdRequest { string cmd = 1; uint64 request_id = 2; repeated string args = 3; }
//
// Encoding and decoding are implemented directly against
// google.golang.org/protobuf/encoding/protowire rather than through
// generated code, since the schema is small, fixed, and not expected to
// grow new variants outside of this package. Unknown top-level tags and
// unknown fields within a known variant are skipped rather than rejected,
// so peers running a newer revision of this schema remain
// forward-compatible with this one.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Top-level oneof field numbers.
const (
	tagMessage    = 1
	tagRPCCall    = 2
	tagCmdRequest = 3
)

// Message field numbers.
const (
	messageTagType = 1
	messageTagData = 2
)

// RpcCall field numbers.
const (
	rpcTagReliable  = 1
	rpcTagMethodID  = 2
	rpcTagRequestID = 3
	rpcTagArgType   = 4
	rpcTagArgData   = 5
)

// CmdRequest field numbers.
const (
	cmdTagCmd       = 1
	cmdTagRequestID = 2
	cmdTagArgs      = 3
)

// Message is an opaque, integer-typed application payload.
type Message struct {
	Type int64
	Data []byte
}

// RPCCall is a remote procedure call: a method id, a caller-assigned
// request id used to correlate the eventual reply, and an opaque,
// integer-typed argument payload.
type RPCCall struct {
	Reliable  bool
	MethodID  int64
	RequestID uint64
	ArgType   int64
	ArgData   []byte
}

// CmdRequest is a named command invocation carrying string arguments, used
// for the admission handshake and other internal control traffic.
type CmdRequest struct {
	Cmd       string
	RequestID uint64
	Args      []string
}

// Envelope is exactly one of Message, RPCCall, or CmdRequest. Exactly one
// of the three pointer fields is non-nil after a successful Decode; all
// three are nil for an envelope that decoded but had no populated variant
// ("ignorable" per the wire contract).
type Envelope struct {
	Message    *Message
	RPCCall    *RPCCall
	CmdRequest *CmdRequest
}

// EncodeMessage encodes an application message envelope.
func EncodeMessage(m Message) ([]byte, error) {
	body := appendMessage(nil, m)
	return appendLenPrefixed(nil, tagMessage, body), nil
}

func appendLenPrefixed(dst []byte, tag protowire.Number, body []byte) []byte {
	dst = protowire.AppendTag(dst, tag, protowire.BytesType)
	dst = protowire.AppendBytes(dst, body)
	return dst
}

func appendMessage(dst []byte, m Message) []byte {
	if m.Type != 0 {
		dst = protowire.AppendTag(dst, messageTagType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(m.Type))
	}
	if len(m.Data) != 0 {
		dst = protowire.AppendTag(dst, messageTagData, protowire.BytesType)
		dst = protowire.AppendBytes(dst, m.Data)
	}
	return dst
}

func appendRPCCall(dst []byte, r RPCCall) []byte {
	if r.Reliable {
		dst = protowire.AppendTag(dst, rpcTagReliable, protowire.VarintType)
		dst = protowire.AppendVarint(dst, 1)
	}
	if r.MethodID != 0 {
		dst = protowire.AppendTag(dst, rpcTagMethodID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(r.MethodID))
	}
	if r.RequestID != 0 {
		dst = protowire.AppendTag(dst, rpcTagRequestID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, r.RequestID)
	}
	if r.ArgType != 0 {
		dst = protowire.AppendTag(dst, rpcTagArgType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(r.ArgType))
	}
	if len(r.ArgData) != 0 {
		dst = protowire.AppendTag(dst, rpcTagArgData, protowire.BytesType)
		dst = protowire.AppendBytes(dst, r.ArgData)
	}
	return dst
}

func appendCmdRequest(dst []byte, c CmdRequest) []byte {
	if c.Cmd != "" {
		dst = protowire.AppendTag(dst, cmdTagCmd, protowire.BytesType)
		dst = protowire.AppendString(dst, c.Cmd)
	}
	if c.RequestID != 0 {
		dst = protowire.AppendTag(dst, cmdTagRequestID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, c.RequestID)
	}
	for _, a := range c.Args {
		dst = protowire.AppendTag(dst, cmdTagArgs, protowire.BytesType)
		dst = protowire.AppendString(dst, a)
	}
	return dst
}

// EncodeRPCCall encodes an RPC call envelope.
func EncodeRPCCall(r RPCCall) ([]byte, error) {
	body := appendRPCCall(nil, r)
	return appendLenPrefixed(nil, tagRPCCall, body), nil
}

// EncodeCmdRequest encodes a command request envelope.
func EncodeCmdRequest(c CmdRequest) ([]byte, error) {
	body := appendCmdRequest(nil, c)
	return appendLenPrefixed(nil, tagCmdRequest, body), nil
}

// Decode parses an envelope from b. An envelope with no populated variant,
// or with only unknown top-level tags, decodes successfully with all
// three Envelope fields nil (the caller should silently drop it). Decode
// only fails when b is not well-formed protobuf-wire-format data.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: consume tag: %v", errDecode, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			// Not a shape we emit for any known variant; skip it whole so
			// that unrelated future scalar fields don't break decoding.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: skip field %d: %v", errDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		body, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: consume field %d: %v", errDecode, num, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case tagMessage:
			m, err := decodeMessage(body)
			if err != nil {
				return Envelope{}, err
			}
			env = Envelope{Message: &m}
		case tagRPCCall:
			r, err := decodeRPCCall(body)
			if err != nil {
				return Envelope{}, err
			}
			env = Envelope{RPCCall: &r}
		case tagCmdRequest:
			c, err := decodeCmdRequest(body)
			if err != nil {
				return Envelope{}, err
			}
			env = Envelope{CmdRequest: &c}
		default:
			// unknown oneof tag: ignorable
		}
	}
	return env, nil
}

func decodeMessage(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: message: consume tag: %v", errDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == messageTagType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: message.type: %v", errDecode, protowire.ParseError(n))
			}
			m.Type = int64(v)
			b = b[n:]
		case num == messageTagData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: message.data: %v", errDecode, protowire.ParseError(n))
			}
			m.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: message: skip field %d: %v", errDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func decodeRPCCall(b []byte) (RPCCall, error) {
	var r RPCCall
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RPCCall{}, fmt.Errorf("%w: rpc_call: consume tag: %v", errDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == rpcTagReliable && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call.reliable: %v", errDecode, protowire.ParseError(n))
			}
			r.Reliable = v != 0
			b = b[n:]
		case num == rpcTagMethodID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call.method_id: %v", errDecode, protowire.ParseError(n))
			}
			r.MethodID = int64(v)
			b = b[n:]
		case num == rpcTagRequestID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call.request_id: %v", errDecode, protowire.ParseError(n))
			}
			r.RequestID = v
			b = b[n:]
		case num == rpcTagArgType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call.arg_type: %v", errDecode, protowire.ParseError(n))
			}
			r.ArgType = int64(v)
			b = b[n:]
		case num == rpcTagArgData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call.arg_data: %v", errDecode, protowire.ParseError(n))
			}
			r.ArgData = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return RPCCall{}, fmt.Errorf("%w: rpc_call: skip field %d: %v", errDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeCmdRequest(b []byte) (CmdRequest, error) {
	var c CmdRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return CmdRequest{}, fmt.Errorf("%w: cmd_request: consume tag: %v", errDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == cmdTagCmd && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return CmdRequest{}, fmt.Errorf("%w: cmd_request.cmd: %v", errDecode, protowire.ParseError(n))
			}
			c.Cmd = v
			b = b[n:]
		case num == cmdTagRequestID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return CmdRequest{}, fmt.Errorf("%w: cmd_request.request_id: %v", errDecode, protowire.ParseError(n))
			}
			c.RequestID = v
			b = b[n:]
		case num == cmdTagArgs && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return CmdRequest{}, fmt.Errorf("%w: cmd_request.args: %v", errDecode, protowire.ParseError(n))
			}
			c.Args = append(c.Args, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return CmdRequest{}, fmt.Errorf("%w: cmd_request: skip field %d: %v", errDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return c, nil
}
