package server

import (
	"time"

	"github.com/omgpp-project/omgpp"
)

// AuditLog receives one record per connection-lifecycle transition the
// server drives. It is a narrow interface (rather than a direct
// dependency on db/auditdb) so the server package stays storage-agnostic,
// the same way the command dispatcher takes a stateOf closure instead of
// depending on the tracker package directly.
type AuditLog interface {
	RecordConnectionEvent(identity omgpp.Identity, endpoint omgpp.Endpoint, kind string, reason string, at time.Time) error
}

// Connection-lifecycle event kinds passed to AuditLog.RecordConnectionEvent.
const (
	AuditConnecting   = "connecting"
	AuditAdmitted     = "admitted"
	AuditRejected     = "rejected"
	AuditExpired      = "expired"
	AuditDisconnected = "disconnected"
)

// SetAuditLog attaches (or, passed nil, detaches) an audit sink. Failures
// to record are logged at Warn and never block the connection lifecycle.
func (s *Server) SetAuditLog(a AuditLog) { s.audit = a }

func (s *Server) audited(identity omgpp.Identity, endpoint omgpp.Endpoint, kind, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordConnectionEvent(identity, endpoint, kind, reason, time.Now()); err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("audit log write failed")
	}
}
