package transport

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Recorder traces every polled Event and InMessage passing through a
// Socket to an underlying writer, for offline debugging of a connection
// session. It is the packet-trace analogue of the reference stack's
// channel-based packet monitor (which fans live packets out to HTTP SSE
// subscribers): instead of a live feed, Recorder appends a compact,
// gzip-compressed trace file a session can be replayed from afterward.
//
// A Recorder wraps a Socket and is itself a Socket, so it can be dropped
// in around any existing transport without the endpoint core knowing the
// difference.
type Recorder struct {
	Socket

	mu  sync.Mutex
	enc *gzip.Writer
}

// recordKind discriminates trace entries on replay.
type recordKind byte

const (
	recordEvent recordKind = iota
	recordMessage
)

// NewRecorder wraps s, writing a gzip-compressed trace of every event and
// message it polls to w. CloseTrace must be called to flush the trace.
func NewRecorder(s Socket, w io.Writer) (*Recorder, error) {
	return &Recorder{Socket: s, enc: gzip.NewWriter(w)}, nil
}

func (r *Recorder) writeHeader(kind recordKind, handle Handle) {
	var hdr [1 + 8 + 8]byte
	hdr[0] = byte(kind)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(handle))
	binary.BigEndian.PutUint64(hdr[9:17], uint64(time.Now().UnixNano()))
	r.enc.Write(hdr[:])
}

// PollEvents traces each event before handing it to visitor.
func (r *Recorder) PollEvents(maxN int, visitor func(Event)) int {
	return r.Socket.PollEvents(maxN, func(e Event) {
		r.mu.Lock()
		r.writeHeader(recordEvent, e.Handle)
		var body [2]byte
		body[0] = byte(e.OldState)
		body[1] = byte(e.NewState)
		r.enc.Write(body[:])
		r.mu.Unlock()
		visitor(e)
	})
}

// PollMessages traces each message before handing it to visitor.
func (r *Recorder) PollMessages(maxN int, visitor func(InMessage)) int {
	return r.Socket.PollMessages(maxN, func(m InMessage) {
		r.mu.Lock()
		r.writeHeader(recordMessage, m.Handle)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Payload)))
		r.enc.Write(lenBuf[:])
		r.enc.Write(m.Payload)
		r.mu.Unlock()
		visitor(m)
	})
}

// CloseTrace flushes and closes the trace stream. It does not close the
// wrapped Socket.
func (r *Recorder) CloseTrace() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Close()
}
