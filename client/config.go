package client

import (
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/omgpp-project/omgpp/internal/econfig"
)

// Config holds a client endpoint's construction-time configuration,
// loadable from an env-file or the process environment via UnmarshalEnv.
type Config struct {
	ServerAddr    netip.Addr    `env:"OMGPP_SERVER_ADDR"`
	ServerPort    uint16        `env:"OMGPP_SERVER_PORT=55655"`
	ClientVersion string        `env:"OMGPP_CLIENT_VERSION"`
	LogLevel      zerolog.Level `env:"OMGPP_LOG_LEVEL=info"`

	// LogFile, if set, is an additional log destination; LogFileLevel
	// gates it independently of LogLevel.
	LogFile      string        `env:"OMGPP_LOG_FILE"`
	LogFileLevel zerolog.Level `env:"OMGPP_LOG_FILE_LEVEL=info"`
}

// UnmarshalEnv populates c from KEY=VALUE environment lines.
func (c *Config) UnmarshalEnv(lines []string) error {
	return econfig.Unmarshal(econfig.ParseLines(lines), c)
}
