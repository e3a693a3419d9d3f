package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeMessage(t *testing.T) {
	m := Message{Type: 7, Data: []byte("hello")}
	b, err := EncodeMessage(m)
	if err != nil {
		panic(err)
	}
	env, err := Decode(b)
	if err != nil {
		panic(err)
	}
	if env.Message == nil || env.RPCCall != nil || env.CmdRequest != nil {
		t.Fatalf("decode: expected only Message set, got %+v", env)
	}
	if env.Message.Type != m.Type || !bytes.Equal(env.Message.Data, m.Data) {
		t.Errorf("decode: expected %+v, got %+v", m, *env.Message)
	}
}

func TestEncodeDecodeRPCCall(t *testing.T) {
	r := RPCCall{Reliable: true, MethodID: 42, RequestID: 9001, ArgType: 3, ArgData: []byte{1, 2, 3}}
	b, err := EncodeRPCCall(r)
	if err != nil {
		panic(err)
	}
	env, err := Decode(b)
	if err != nil {
		panic(err)
	}
	if env.RPCCall == nil || env.Message != nil || env.CmdRequest != nil {
		t.Fatalf("decode: expected only RPCCall set, got %+v", env)
	}
	got := *env.RPCCall
	if got.Reliable != r.Reliable || got.MethodID != r.MethodID || got.RequestID != r.RequestID ||
		got.ArgType != r.ArgType || !bytes.Equal(got.ArgData, r.ArgData) {
		t.Errorf("decode: expected %+v, got %+v", r, *env.RPCCall)
	}
}

func TestEncodeDecodeCmdRequest(t *testing.T) {
	c := CmdRequest{Cmd: "auth", RequestID: 5, Args: []string{"token", "abc123"}}
	b, err := EncodeCmdRequest(c)
	if err != nil {
		panic(err)
	}
	env, err := Decode(b)
	if err != nil {
		panic(err)
	}
	if env.CmdRequest == nil || env.Message != nil || env.RPCCall != nil {
		t.Fatalf("decode: expected only CmdRequest set, got %+v", env)
	}
	if env.CmdRequest.Cmd != c.Cmd || env.CmdRequest.RequestID != c.RequestID || len(env.CmdRequest.Args) != len(c.Args) {
		t.Errorf("decode: expected %+v, got %+v", c, *env.CmdRequest)
	}
	for i := range c.Args {
		if env.CmdRequest.Args[i] != c.Args[i] {
			t.Errorf("decode: arg %d: expected %q, got %q", i, c.Args[i], env.CmdRequest.Args[i])
		}
	}
}

func TestDecodeEmptyIsIgnorable(t *testing.T) {
	env, err := Decode(nil)
	if err != nil {
		panic(err)
	}
	if env.Message != nil || env.RPCCall != nil || env.CmdRequest != nil {
		t.Errorf("decode: expected empty envelope, got %+v", env)
	}
}

func TestDecodeUnknownTopLevelTagIgnored(t *testing.T) {
	// field 15 (unknown oneof variant), length-delimited, empty body
	b := []byte{(15 << 3) | 2, 0}
	env, err := Decode(b)
	if err != nil {
		panic(err)
	}
	if env.Message != nil || env.RPCCall != nil || env.CmdRequest != nil {
		t.Errorf("decode: expected empty envelope for unknown tag, got %+v", env)
	}
}

func TestDecodeMalformedReturnsErrDecode(t *testing.T) {
	// truncated varint tag byte (continuation bit set, nothing follows)
	b := []byte{0x80}
	if _, err := Decode(b); !errors.Is(err, ErrDecode) {
		t.Errorf("decode: expected ErrDecode, got %v", err)
	}
}

func TestZeroValueFieldsRoundTripAsUnset(t *testing.T) {
	b, err := EncodeMessage(Message{})
	if err != nil {
		panic(err)
	}
	env, err := Decode(b)
	if err != nil {
		panic(err)
	}
	if env.Message == nil {
		t.Fatalf("decode: expected Message set (even if zero-valued), got %+v", env)
	}
	if env.Message.Type != 0 || len(env.Message.Data) != 0 {
		t.Errorf("decode: expected zero-valued Message, got %+v", *env.Message)
	}
}
