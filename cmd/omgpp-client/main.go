// Command omgpp-client connects to an omgpp-server chat-broadcast demo,
// relays stdin lines to the server as CHAT commands, and prints whatever
// chat lines the server broadcasts back.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/omgpp-project/omgpp"
	"github.com/omgpp-project/omgpp/client"
	"github.com/omgpp-project/omgpp/internal/logx"
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

	var cfg client.Config
	if err := cfg.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	outputs := []io.Writer{logx.NewLeveledWriter(zerolog.ConsoleWriter{Out: os.Stderr}, cfg.LogLevel)}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		outputs = append(outputs, logx.NewLeveledWriter(f, cfg.LogFileLevel))
	}
	log := zerolog.New(zerolog.MultiLevelWriter(outputs...)).With().Timestamp().Logger()

	facade := &transport.QUICFacade{TLSConfig: &tls.Config{
		InsecureSkipVerify: true, // demo only: the server's cert is self-signed and unpinned
		NextProtos:         []string{"omgpp"},
	}}

	c, err := client.New(facade, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: create client: %v\n", err)
		os.Exit(1)
	}

	c.OnAuthenticate(func(_ *client.Client, _ omgpp.Endpoint) []string {
		return []string{cfg.ClientVersion}
	})
	c.OnConnectionChanged(func(_ *client.Client, _ omgpp.Endpoint, state omgpp.ConnectionState) {
		log.Info().Stringer("state", state).Msg("connection state changed")
	})
	c.OnMessage(func(_ *client.Client, _ omgpp.Endpoint, msgType int64, data []byte) {
		if msgType == msgTypeChat {
			fmt.Println(string(data))
		}
	})

	if err := c.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "error: connect: %v\n", err)
		os.Exit(1)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if c.State() == omgpp.Connected {
				if err := c.SendCommand("CHAT", 0, []string{line}); err != nil {
					log.Warn().Err(err).Msg("send chat line failed")
				}
			}
		case <-ticker.C:
			if err := c.Process(256); err != nil {
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
