// Command omgpp-server runs a minimal chat-broadcast demo of the server
// endpoint core: clients connect, authenticate, and any chat line one
// client sends is reliably broadcast to every verified client, the sender
// included.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-envparse"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/command"
	"github.com/omgpp-project/omgpp/db/auditdb"
	"github.com/omgpp-project/omgpp/internal/logx"
	"github.com/omgpp-project/omgpp/server"
	"github.com/omgpp-project/omgpp/transport"
)

const msgTypeChat int64 = 1

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		var err error
		e, err = readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
	}

	var cfg server.Config
	if err := cfg.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	outputs := []io.Writer{logx.NewLeveledWriter(zerolog.ConsoleWriter{Out: os.Stderr}, cfg.LogLevel)}
	var logFile *logx.ReopenableFile
	if cfg.LogFile != "" {
		f, err := logx.OpenReopenable(cfg.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logFile = f
		outputs = append(outputs, logx.NewLeveledWriter(f, cfg.LogFileLevel))
	}
	log := zerolog.New(zerolog.MultiLevelWriter(outputs...)).With().Timestamp().Logger()

	if logFile != nil {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				if err := logFile.Reopen(); err != nil {
					log.Warn().Err(err).Msg("reopen log file failed")
				} else {
					log.Info().Msg("log file reopened")
				}
			}
		}()
	}

	tlsCfg, err := selfSignedTLSConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate tls config: %v\n", err)
		os.Exit(1)
	}
	facade := &transport.QUICFacade{TLSConfig: tlsCfg}

	s, err := server.New(facade, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: start server: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", serveMetrics(s))
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics listener failed")
			}
		}()
		defer metricsSrv.Close()
	}

	if cfg.AuditDB != "" {
		adb, err := auditdb.Open(cfg.AuditDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open audit db: %v\n", err)
			os.Exit(1)
		}
		defer adb.Close()

		_, required, err := adb.Version()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read audit db version: %v\n", err)
			os.Exit(1)
		}
		if err := adb.MigrateUp(context.Background(), required); err != nil {
			fmt.Fprintf(os.Stderr, "error: migrate audit db: %v\n", err)
			os.Exit(1)
		}
		s.SetAuditLog(auditAdapter{db: adb})
	}

	s.OnConnectionChanged(func(_ *server.Server, identity omgpp.Identity, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		log.Info().Stringer("identity", identity).Stringer("state", state).Msg("connection state changed")
	})

	if err := s.RegisterCommand("CHAT", true, func(req command.Request) {
		if len(req.Args) == 0 {
			return
		}
		if err := s.BroadcastReliable(msgTypeChat, []byte(req.Args[0])); err != nil {
			log.Warn().Err(err).Msg("broadcast chat line failed")
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: register CHAT command: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	log.Info().Str("addr", cfg.BindAddr.String()).Uint16("port", cfg.Port).Msg("omgpp-server listening")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Process(256); err != nil {
				log.Warn().Err(err).Msg("process cycle error")
			}
		}
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
