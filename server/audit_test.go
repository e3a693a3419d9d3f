package server

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/transport"
)

type fakeAuditLog struct {
	kinds []string
}

func (f *fakeAuditLog) RecordConnectionEvent(_ omgpp.Identity, _ omgpp.Endpoint, kind, _ string, _ time.Time) error {
	f.kinds = append(f.kinds, kind)
	return nil
}

func TestAuditLogRecordsConnectingAndAdmitted(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 3001, Config{})
	audit := &fakeAuditLog{}
	s.SetAuditLog(audit)

	c := newTestClient(t, f, 3001)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	runUntilConnected(t, s, c, 10)

	want := []string{AuditConnecting, AuditAdmitted}
	if len(audit.kinds) != len(want) {
		t.Fatalf("audit.kinds = %v, want %v", audit.kinds, want)
	}
	for i, k := range want {
		if audit.kinds[i] != k {
			t.Fatalf("audit.kinds = %v, want %v", audit.kinds, want)
		}
	}
}

func TestAuditLogRecordsRejection(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 3002, Config{})
	s.OnConnectRequested(func(*Server, omgpp.Endpoint) bool { return false })
	audit := &fakeAuditLog{}
	s.SetAuditLog(audit)

	c := newTestClient(t, f, 3002)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i := 0; i < 5; i++ {
		s.Process(16)
		c.Process(16)
	}

	if len(audit.kinds) != 2 || audit.kinds[0] != AuditConnecting || audit.kinds[1] != AuditRejected {
		t.Fatalf("audit.kinds = %v, want [connecting rejected]", audit.kinds)
	}
}

func TestAuditLogRecordsExpiry(t *testing.T) {
	f := transport.NewMemFacade()
	s := newTestServer(t, f, 3003, Config{UnverifiedExpiry: 10 * time.Millisecond})
	audit := &fakeAuditLog{}
	s.SetAuditLog(audit)

	if _, err := f.Connect(netip.MustParseAddr("::1"), 3003); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Process(16)
	s.Process(16) // tracks the peer as ConnectedUnverified
	time.Sleep(20 * time.Millisecond)
	s.Process(16)

	found := false
	for _, k := range audit.kinds {
		if k == AuditExpired {
			found = true
		}
	}
	if !found {
		t.Fatalf("audit.kinds = %v, want to contain %q", audit.kinds, AuditExpired)
	}
}
