package server

import (
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp/internal/econfig"
	"github.com/omgpp-project/omgpp/tracker"
)

// Config configures a Server. The env tag on each field names the
// environment variable UnmarshalEnv reads it from, in the style of the
// teacher stack's Config.UnmarshalEnv.
type Config struct {
	// BindAddr is the address to listen on.
	BindAddr netip.Addr `env:"OMGPP_BIND_ADDR=::"`

	// Port is the UDP port to listen on.
	Port uint16 `env:"OMGPP_PORT=55655"`

	// ResourceLocation is returned verbatim by the built-in RESOURCES
	// command handler.
	ResourceLocation string `env:"OMGPP_RESOURCE_LOCATION"`

	// UnverifiedExpiry bounds how long a ConnectedUnverified peer may go
	// without completing the AUTH handshake before being closed.
	UnverifiedExpiry time.Duration `env:"OMGPP_UNVERIFIED_EXPIRY=3s"`

	// MinClientVersion, if set, is a semver floor applied to the first
	// AUTH credential string; clients below it are refused. Empty
	// disables the check (the spec's unconditional-accept placeholder).
	MinClientVersion string `env:"OMGPP_MIN_CLIENT_VERSION"`

	// AuditDB, if set, is the path to a sqlite3 database file the server logs connection
	// lifecycle events to. Empty disables audit logging.
	AuditDB string `env:"OMGPP_AUDIT_DB"`

	// GeoIPDB, if set, is the path to an IP2Location database used to
	// bucket connected-peer counts by geohash prefix.
	GeoIPDB string `env:"OMGPP_GEOIP_DB"`

	// MetricsAddr, if set, is an address the process metrics and the
	// geohash-bucketed connected-peer gauge are exposed on in Prometheus
	// text format. Empty disables the metrics endpoint.
	MetricsAddr string `env:"OMGPP_METRICS_ADDR"`

	// RetiredCapacity bounds the tracker's retained Disconnected/None
	// entries. See tracker.DefaultRetiredCapacity.
	RetiredCapacity int `env:"OMGPP_RETIRED_CAPACITY=4096"`

	// LogLevel is the minimum zerolog level the console writer emits.
	LogLevel zerolog.Level `env:"OMGPP_LOG_LEVEL=info"`

	// LogFile, if set, is an additional log destination; LogFileLevel
	// gates it independently of LogLevel.
	LogFile      string        `env:"OMGPP_LOG_FILE"`
	LogFileLevel zerolog.Level `env:"OMGPP_LOG_FILE_LEVEL=info"`
}

// UnmarshalEnv populates c from KEY=VALUE environment lines.
func (c *Config) UnmarshalEnv(lines []string) error {
	return econfig.Unmarshal(econfig.ParseLines(lines), c)
}

func (c *Config) trackerOptions() []tracker.Option {
	return []tracker.Option{
		tracker.WithExpiry(c.UnverifiedExpiry),
		tracker.WithRetiredCapacity(c.RetiredCapacity),
	}
}
