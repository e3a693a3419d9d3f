// Package logx provides the logging-destination plumbing the demo
// commands use: a leveled writer that fans a single zerolog.Logger out
// to multiple destinations (console, file) at independently configured
// minimum levels, and a reopenable file destination so a long-running
// server can pick up a log file renamed out from under it (logrotate,
// an operator's `mv`) without restarting.
package logx

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LeveledWriter wraps an io.Writer (nil is a valid, discard-everything
// writer) so it can be combined with others via zerolog.MultiLevelWriter,
// each filtering independently by l.
type LeveledWriter struct {
	w io.Writer
	l zerolog.Level
	m sync.Mutex
}

var _ zerolog.LevelWriter = (*LeveledWriter)(nil)

// NewLeveledWriter wraps w (which may be nil) to drop events below l.
func NewLeveledWriter(w io.Writer, l zerolog.Level) *LeveledWriter {
	return &LeveledWriter{w: w, l: l}
}

func (wl *LeveledWriter) Write(p []byte) (n int, err error) {
	wl.m.Lock()
	defer wl.m.Unlock()
	if wl.w != nil {
		return wl.w.Write(p)
	}
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter, dropping anything below the
// configured minimum level.
func (wl *LeveledWriter) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	if l < wl.l {
		return len(p), nil
	}
	wl.m.Lock()
	defer wl.m.Unlock()
	if wl.w == nil {
		return len(p), nil
	}
	if lw, ok := wl.w.(zerolog.LevelWriter); ok {
		return lw.WriteLevel(l, p)
	}
	return wl.w.Write(p)
}

// ReopenableFile is a log file destination that can close and reopen its
// underlying descriptor at the same path without the caller needing to
// rebuild the zerolog.Logger that wraps it. A SIGHUP handler calling
// Reopen is the usual trigger: it lets a renamed-out-from-under-it log
// file (the logrotate pattern) start writing to a fresh file at the
// original path instead of an unlinked one nobody can read.
type ReopenableFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenReopenable opens path for appending, creating it if necessary.
func OpenReopenable(path string) (*ReopenableFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &ReopenableFile{path: path, f: f}, nil
}

func (r *ReopenableFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Write(p)
}

// Reopen closes the current descriptor and reopens r's path, creating it
// if it no longer exists.
func (r *ReopenableFile) Reopen() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.mu.Lock()
	old := r.f
	r.f = f
	r.mu.Unlock()
	return old.Close()
}

// Close closes the current descriptor.
func (r *ReopenableFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
