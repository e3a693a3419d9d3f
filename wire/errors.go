package wire

import "errors"

// errDecode is wrapped with positional context by Decode and the
// per-variant decoders; callers that need the sentinel should use
// errors.Is(err, wire.ErrDecode).
var errDecode = errors.New("wire: decode failed")

// ErrDecode is the sentinel wrapped by every decode error returned from
// this package.
var ErrDecode = errDecode
