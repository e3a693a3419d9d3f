package main

import (
	"bytes"
	"io"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/omgpp-project/omgpp/server"
)

// serveMetrics renders process metrics and the server's geohash-bucketed
// connected-peer gauge as one Prometheus text response, composed the way
// the teacher stack's own /metrics handler concatenates independent
// WritePrometheus funcs.
func serveMetrics(s *server.Server) http.HandlerFunc {
	writers := []func(io.Writer){
		metrics.WriteProcessMetrics,
		s.WritePrometheus,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b bytes.Buffer
		for i, fn := range writers {
			if i != 0 {
				b.WriteByte('\n')
			}
			fn(&b)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Header().Set("Cache-Control", "private, no-cache, no-store")
		w.Write(b.Bytes())
	}
}
