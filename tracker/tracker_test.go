package tracker

import (
	"net/netip"
	"testing"
	"time"

	"github.com/omgpp-project/omgpp"
)

func endpoint(port uint16) omgpp.Endpoint {
	return omgpp.NewEndpoint(netip.MustParseAddr("::1"), port)
}

func TestTrackUnverifiedSetsStateAndBindings(t *testing.T) {
	tr := New()
	ep := endpoint(1)
	id := omgpp.IdentityFromEndpoint(ep)
	now := time.Unix(1000, 0)

	tr.TrackUnverified(id, ep, Handle(1), now)

	if got := tr.State(id); got != omgpp.ConnectedUnverified {
		t.Fatalf("state = %v, want ConnectedUnverified", got)
	}
	if h, ok := tr.ConnectionFor(id); !ok || h != 1 {
		t.Fatalf("ConnectionFor = (%v, %v), want (1, true)", h, ok)
	}
	if e, ok := tr.EndpointFor(id); !ok || e != ep {
		t.Fatalf("EndpointFor = (%v, %v), want (%v, true)", e, ok, ep)
	}
	if got, ok := tr.ClientByConnection(Handle(1)); !ok || got != id {
		t.Fatalf("ClientByConnection = (%v, %v), want (%v, true)", got, ok, id)
	}
}

func TestTrackVerifiedRemovesUnverifiedEntryKeepsBindings(t *testing.T) {
	tr := New()
	ep := endpoint(2)
	id := omgpp.IdentityFromEndpoint(ep)
	tr.TrackUnverified(id, ep, Handle(2), time.Unix(0, 0))

	tr.TrackVerified(id, ep, Handle(2))

	if got := tr.State(id); got != omgpp.Connected {
		t.Fatalf("state = %v, want Connected", got)
	}
	if h, ok := tr.ConnectionFor(id); !ok || h != 2 {
		t.Fatalf("ConnectionFor = (%v, %v), want (2, true)", h, ok)
	}
	if e, ok := tr.EndpointFor(id); !ok || e != ep {
		t.Fatalf("EndpointFor = (%v, %v), want (%v, true)", e, ok, ep)
	}
	// no longer subject to expiry since it's no longer ConnectedUnverified
	if expired := tr.ExpiredUnverified(time.Unix(1_000_000, 0)); len(expired) != 0 {
		t.Fatalf("ExpiredUnverified = %v, want empty", expired)
	}
}

func TestTrackDisconnectedRemovesFromHandleAndEndpointMaps(t *testing.T) {
	tr := New()
	ep := endpoint(3)
	id := omgpp.IdentityFromEndpoint(ep)
	tr.TrackUnverified(id, ep, Handle(3), time.Unix(0, 0))
	tr.TrackVerified(id, ep, Handle(3))

	tr.TrackDisconnected(id)

	if got := tr.State(id); got != omgpp.Disconnected {
		t.Fatalf("state = %v, want Disconnected", got)
	}
	if _, ok := tr.ConnectionFor(id); ok {
		t.Fatal("ConnectionFor: expected absent after disconnect")
	}
	if _, ok := tr.EndpointFor(id); ok {
		t.Fatal("EndpointFor: expected absent after disconnect")
	}
	if _, ok := tr.ClientByConnection(Handle(3)); ok {
		t.Fatal("ClientByConnection: expected absent after disconnect")
	}
}

func TestHandleAndEndpointMapsAreBijections(t *testing.T) {
	tr := New()
	ep1, ep2 := endpoint(10), endpoint(11)
	id1, id2 := omgpp.IdentityFromEndpoint(ep1), omgpp.IdentityFromEndpoint(ep2)

	tr.TrackUnverified(id1, ep1, Handle(100), time.Unix(0, 0))
	tr.TrackUnverified(id2, ep2, Handle(101), time.Unix(0, 0))

	seenHandles := map[Handle]bool{}
	seenEndpoints := map[omgpp.Endpoint]bool{}
	for _, id := range []omgpp.Identity{id1, id2} {
		h, _ := tr.ConnectionFor(id)
		if seenHandles[h] {
			t.Fatalf("handle %v bound to more than one identity", h)
		}
		seenHandles[h] = true

		e, _ := tr.EndpointFor(id)
		if seenEndpoints[e] {
			t.Fatalf("endpoint %v bound to more than one identity", e)
		}
		seenEndpoints[e] = true
	}
}

func TestExpiredUnverifiedYieldsOnlyStrictlyOlderThanExpiry(t *testing.T) {
	tr := New(WithExpiry(3 * time.Second))
	epOld, epNew := endpoint(20), endpoint(21)
	idOld, idNew := omgpp.IdentityFromEndpoint(epOld), omgpp.IdentityFromEndpoint(epNew)

	base := time.Unix(1_000_000, 0)
	tr.TrackUnverified(idOld, epOld, Handle(200), base)
	tr.TrackUnverified(idNew, epNew, Handle(201), base.Add(2*time.Second))

	now := base.Add(4 * time.Second) // idOld is 4s old (expired), idNew is 2s old (not)
	expired := tr.ExpiredUnverified(now)
	if len(expired) != 1 || expired[0] != Handle(200) {
		t.Fatalf("ExpiredUnverified = %v, want [200]", expired)
	}
}

func TestIdentityFromEndpointIsPureFunctionOfNormalizedForm(t *testing.T) {
	ipv4 := omgpp.NewEndpoint(netip.MustParseAddr("127.0.0.1"), 80)
	ipv4Mapped := omgpp.NewEndpoint(netip.MustParseAddr("::ffff:127.0.0.1"), 80)

	if omgpp.IdentityFromEndpoint(ipv4) != omgpp.IdentityFromEndpoint(ipv4Mapped) {
		t.Fatal("identity should be equal for an IPv4 address and its IPv4-mapped IPv6 equivalent")
	}

	id1 := omgpp.IdentityFromEndpoint(ipv4)
	id2 := omgpp.IdentityFromEndpoint(ipv4)
	if id1 != id2 {
		t.Fatal("identity_from_endpoint is not deterministic")
	}
}

func TestDisconnectedRecordsAreBoundedByRetiredCapacity(t *testing.T) {
	tr := New(WithRetiredCapacity(2))
	var ids []omgpp.Identity
	for i := uint16(0); i < 3; i++ {
		ep := endpoint(30 + i)
		id := omgpp.IdentityFromEndpoint(ep)
		ids = append(ids, id)
		tr.TrackUnverified(id, ep, Handle(300+uint64(i)), time.Unix(0, 0))
		tr.TrackVerified(id, ep, Handle(300+uint64(i)))
		tr.TrackDisconnected(id)
	}

	// the oldest retired identity should have been evicted back to None
	if got := tr.State(ids[0]); got != omgpp.None {
		t.Fatalf("state of evicted identity = %v, want None", got)
	}
	if got := tr.State(ids[2]); got != omgpp.Disconnected {
		t.Fatalf("state of most-recently retired identity = %v, want Disconnected", got)
	}
}

func TestReconnectAfterDisconnectClearsRetirement(t *testing.T) {
	tr := New(WithRetiredCapacity(1))
	ep := endpoint(40)
	id := omgpp.IdentityFromEndpoint(ep)

	tr.TrackUnverified(id, ep, Handle(400), time.Unix(0, 0))
	tr.TrackVerified(id, ep, Handle(400))
	tr.TrackDisconnected(id)

	// a second identity pushes the retired LRU past capacity
	ep2 := endpoint(41)
	id2 := omgpp.IdentityFromEndpoint(ep2)
	tr.TrackUnverified(id2, ep2, Handle(401), time.Unix(0, 0))
	tr.TrackVerified(id2, ep2, Handle(401))
	tr.TrackDisconnected(id2)

	if got := tr.State(id); got != omgpp.None {
		t.Fatalf("state = %v, want None (evicted)", got)
	}

	// reconnecting should work regardless of prior retirement/eviction
	tr.TrackUnverified(id, ep, Handle(402), time.Unix(10, 0))
	if got := tr.State(id); got != omgpp.ConnectedUnverified {
		t.Fatalf("state after reconnect = %v, want ConnectedUnverified", got)
	}
}
