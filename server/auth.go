package server

import (
	"golang.org/x/mod/semver"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
)

// defaultVerify is the spec's placeholder admission check: unconditional
// accept.
func defaultVerify(credentials []string, endpoint omgpp.Endpoint) bool {
	return true
}

// minVersionVerify extends the placeholder with a minimum-client-version
// gate: the first credential, if present, must be a semver string no
// older than floor. A missing or malformed credential is rejected once
// this gate is configured.
func minVersionVerify(floor string) func([]string, omgpp.Endpoint) bool {
	canonicalFloor := semver.Canonical(normalizeSemver(floor))
	return func(credentials []string, _ omgpp.Endpoint) bool {
		if len(credentials) == 0 {
			return false
		}
		v := normalizeSemver(credentials[0])
		if !semver.IsValid(v) {
			return false
		}
		return semver.Compare(semver.Canonical(v), canonicalFloor) >= 0
	}
}

// normalizeSemver prefixes a bare "major.minor.patch" version with "v",
// since golang.org/x/mod/semver requires the leading v that this
// protocol's client version strings don't carry.
func normalizeSemver(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// registerBuiltins installs the AUTH and RESOURCES command handlers.
func (s *Server) registerBuiltins() {
	s.disp.Register("AUTH", false, s.handleAuth)
	s.disp.Register("RESOURCES", false, s.handleResources)
}

func (s *Server) handleAuth(req command.Request) {
	if !s.verify(req.Args, req.Endpoint) {
		if h, ok := s.tr.ConnectionFor(req.Identity); ok {
			s.socket.Close(h, 0, "You are not allowed to connect", false)
			s.tr.TrackDisconnected(req.Identity)
			s.emitStateChange(req.Identity, req.Endpoint, omgpp.Disconnected)
			s.audited(req.Identity, req.Endpoint, AuditRejected, "failed credential verification")
		}
		return
	}

	h, ok := s.tr.ConnectionFor(req.Identity)
	if !ok {
		return
	}
	s.tr.TrackVerified(req.Identity, req.Endpoint, h)
	s.emitStateChange(req.Identity, req.Endpoint, omgpp.Connected)
	s.audited(req.Identity, req.Endpoint, AuditAdmitted, "")
	s.SendCommand(req.Identity, "AUTH", req.RequestID, []string{"ok"})
}

func (s *Server) handleResources(req command.Request) {
	s.SendCommand(req.Identity, "RESOURCES", req.RequestID, []string{s.cfg.ResourceLocation})
}
