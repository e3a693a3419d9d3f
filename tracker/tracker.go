// Package tracker implements the server-side connection tracker: a
// stable-identity registry of peers with bidirectional lookups between
// identity, transport handle, and endpoint, plus a side-table of
// unverified peers with arrival timestamps used to drive handshake
// expiry.
//
// A Tracker is not safe for concurrent use; it is owned by exactly one
// endpoint core and accessed only from that core's driving task, per the
// single-threaded cooperative model the rest of this module follows.
package tracker

import (
	"container/list"
	"time"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/transport"
)

// DefaultUnverifiedExpiry is the default duration a ConnectedUnverified
// peer is allowed to remain without completing the admission handshake.
const DefaultUnverifiedExpiry = 3 * time.Second

// DefaultRetiredCapacity bounds the number of Disconnected/None records
// kept after a peer leaves the handle/endpoint maps, evicting the
// least-recently-retired entry once the bound is exceeded. Unlike the
// reference implementation (which retains these indefinitely), this
// keeps the tracker's memory bounded under long-running churn; see the
// design notes on state retention.
const DefaultRetiredCapacity = 4096

// Handle aliases the transport's connection handle so callers of this
// package don't need a separate import for it.
type Handle = transport.Handle

type record struct {
	state      omgpp.ConnectionState
	firstSeen  time.Time
	hasHandle  bool
	handle     Handle
	endpoint   omgpp.Endpoint
	hasEnd     bool
	retireElem *list.Element // present iff this record is tracked in the retired LRU
}

// Tracker is the server-side connection tracker described by the data
// model: identity↔handle and identity↔endpoint bijections, a total
// identity→state function defaulting to None, and an unverified-timestamp
// side table.
type Tracker struct {
	expiry time.Duration

	byIdentity map[omgpp.Identity]*record
	byHandle   map[Handle]omgpp.Identity
	byEndpoint map[omgpp.Endpoint]omgpp.Identity

	retired    *list.List // of omgpp.Identity, front = most recently retired
	retiredCap int
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithExpiry overrides DefaultUnverifiedExpiry.
func WithExpiry(d time.Duration) Option {
	return func(t *Tracker) { t.expiry = d }
}

// WithRetiredCapacity overrides DefaultRetiredCapacity. A capacity of 0
// disables retention entirely (Disconnected records are forgotten
// immediately, collapsing their state back to None on next query).
func WithRetiredCapacity(n int) Option {
	return func(t *Tracker) { t.retiredCap = n }
}

// New constructs an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		expiry:     DefaultUnverifiedExpiry,
		byIdentity: make(map[omgpp.Identity]*record),
		byHandle:   make(map[Handle]omgpp.Identity),
		byEndpoint: make(map[omgpp.Endpoint]omgpp.Identity),
		retired:    list.New(),
		retiredCap: DefaultRetiredCapacity,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// IdentityFromEndpoint derives the identity for an endpoint. It is a pure
// function, re-exported here so that callers driving the tracker don't
// need a separate import of the root package for this one call.
func (t *Tracker) IdentityFromEndpoint(e omgpp.Endpoint) omgpp.Identity {
	return omgpp.IdentityFromEndpoint(e)
}

// State returns the identity's state, defaulting to None for an identity
// never seen.
func (t *Tracker) State(id omgpp.Identity) omgpp.ConnectionState {
	r, ok := t.byIdentity[id]
	if !ok {
		return omgpp.None
	}
	return r.state
}

// ConnectionFor returns the transport handle bound to id, if any.
func (t *Tracker) ConnectionFor(id omgpp.Identity) (Handle, bool) {
	r, ok := t.byIdentity[id]
	if !ok || !r.hasHandle {
		return 0, false
	}
	return r.handle, true
}

// EndpointFor returns the endpoint bound to id, if any.
func (t *Tracker) EndpointFor(id omgpp.Identity) (omgpp.Endpoint, bool) {
	r, ok := t.byIdentity[id]
	if !ok || !r.hasEnd {
		return omgpp.Endpoint{}, false
	}
	return r.endpoint, true
}

// ClientByConnection returns the identity bound to handle, if any.
func (t *Tracker) ClientByConnection(h Handle) (omgpp.Identity, bool) {
	id, ok := t.byHandle[h]
	return id, ok
}

// ActivePair is one entry of ActiveClients.
type ActivePair struct {
	Identity omgpp.Identity
	Endpoint omgpp.Endpoint
}

// ActiveClients returns every peer currently in the Connected state.
func (t *Tracker) ActiveClients() []ActivePair {
	out := make([]ActivePair, 0, len(t.byIdentity))
	for id, r := range t.byIdentity {
		if r.state == omgpp.Connected {
			out = append(out, ActivePair{Identity: id, Endpoint: r.endpoint})
		}
	}
	return out
}

// ActiveConnections returns the transport handles of every Connected peer,
// suitable for driving a broadcast fan-out.
func (t *Tracker) ActiveConnections() []Handle {
	out := make([]Handle, 0, len(t.byIdentity))
	for _, r := range t.byIdentity {
		if r.state == omgpp.Connected && r.hasHandle {
			out = append(out, r.handle)
		}
	}
	return out
}

func (t *Tracker) recordFor(id omgpp.Identity) *record {
	r, ok := t.byIdentity[id]
	if !ok {
		r = &record{state: omgpp.None}
		t.byIdentity[id] = r
	}
	return r
}

// unretire removes id from the retired LRU, if present, since it is about
// to re-enter an active state.
func (t *Tracker) unretire(r *record) {
	if r.retireElem != nil {
		t.retired.Remove(r.retireElem)
		r.retireElem = nil
	}
}

// TrackUnverified inserts or updates the three-way mapping for id and
// records the current timestamp as first-seen, setting its state to
// ConnectedUnverified.
func (t *Tracker) TrackUnverified(id omgpp.Identity, endpoint omgpp.Endpoint, handle Handle, now time.Time) {
	r := t.recordFor(id)
	t.unretire(r)

	if r.hasHandle && r.handle != handle {
		delete(t.byHandle, r.handle)
	}
	if r.hasEnd && r.endpoint != endpoint {
		delete(t.byEndpoint, r.endpoint)
	}

	r.handle, r.hasHandle = handle, true
	r.endpoint, r.hasEnd = endpoint, true
	r.firstSeen = now
	r.state = omgpp.ConnectedUnverified

	t.byHandle[handle] = id
	t.byEndpoint[endpoint] = id
}

// TrackVerified removes any unverified-timestamp entry for id, ensures the
// handle/endpoint maps contain the record, and sets its state to
// Connected.
func (t *Tracker) TrackVerified(id omgpp.Identity, endpoint omgpp.Endpoint, handle Handle) {
	r := t.recordFor(id)
	t.unretire(r)

	if r.hasHandle && r.handle != handle {
		delete(t.byHandle, r.handle)
	}
	if r.hasEnd && r.endpoint != endpoint {
		delete(t.byEndpoint, r.endpoint)
	}

	r.handle, r.hasHandle = handle, true
	r.endpoint, r.hasEnd = endpoint, true
	r.firstSeen = time.Time{}
	r.state = omgpp.Connected

	t.byHandle[handle] = id
	t.byEndpoint[endpoint] = id
}

// TrackDisconnected removes id from the handle, endpoint, and
// unverified-timestamp maps and sets its state to Disconnected, subject
// to the retired-entry LRU bound.
func (t *Tracker) TrackDisconnected(id omgpp.Identity) {
	r, ok := t.byIdentity[id]
	if !ok {
		r = &record{}
		t.byIdentity[id] = r
	}

	if r.hasHandle {
		delete(t.byHandle, r.handle)
		r.hasHandle = false
	}
	if r.hasEnd {
		delete(t.byEndpoint, r.endpoint)
		r.hasEnd = false
	}
	r.firstSeen = time.Time{}
	r.state = omgpp.Disconnected

	t.retire(id, r)
}

func (t *Tracker) retire(id omgpp.Identity, r *record) {
	if t.retiredCap <= 0 {
		delete(t.byIdentity, id)
		return
	}
	if r.retireElem != nil {
		t.retired.MoveToFront(r.retireElem)
		return
	}
	r.retireElem = t.retired.PushFront(id)
	for t.retired.Len() > t.retiredCap {
		oldest := t.retired.Back()
		t.retired.Remove(oldest)
		oldID := oldest.Value.(omgpp.Identity)
		delete(t.byIdentity, oldID)
	}
}

// ExpiredUnverified returns the transport handles of every peer in
// ConnectedUnverified whose first-seen timestamp is strictly older than
// the tracker's configured expiry duration, as of now.
func (t *Tracker) ExpiredUnverified(now time.Time) []Handle {
	var out []Handle
	for _, r := range t.byIdentity {
		if r.state == omgpp.ConnectedUnverified && r.hasHandle && now.Sub(r.firstSeen) > t.expiry {
			out = append(out, r.handle)
		}
	}
	return out
}

// Expiry returns the configured unverified-connection expiry duration.
func (t *Tracker) Expiry() time.Duration {
	return t.expiry
}
