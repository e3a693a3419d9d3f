package main

import (
	"time"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/db/auditdb"
)

// auditAdapter satisfies server.AuditLog by forwarding to an *auditdb.DB,
// translating the server's plain-string event kinds into auditdb.Kind.
type auditAdapter struct {
	db *auditdb.DB
}

func (a auditAdapter) RecordConnectionEvent(identity omgpp.Identity, endpoint omgpp.Endpoint, kind, reason string, at time.Time) error {
	return a.db.RecordEvent(identity, endpoint, auditdb.Kind(kind), reason, at)
}
