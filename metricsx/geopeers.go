// Package metricsx bucketes connected-peer counts by geohash prefix for
// ops dashboards, written in Prometheus text format.
package metricsx

import (
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mmcloughlin/geohash"
)

func splitName(name string) (base, arg string) {
	if n := len(name); n != 0 {
		base = name
		for i, r := range base {
			if r == '{' {
				if j := len(base) - 1; j > i && base[j] == '}' {
					base, arg = base[:i], base[i+1:j]
					break
				}
			}
		}
	}
	return
}

func formatName(base, arg string, args ...string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	if arg != "" {
		b.WriteString(arg)
	}
	for i := 1; i < len(args); i += 2 {
		if arg != "" || i > 1 {
			b.WriteByte(',')
		}
		b.WriteString(args[i-1])
		b.WriteString("=\"")
		b.WriteString(args[i])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// GeoCounter2 is an optimized standalone level-2 geohash-bucketed
// counter. It must not be copied (it uses atomics).
type GeoCounter2 struct {
	name string
	ctr  [1 << (5 * 2)]uint64
	unk  uint64
}

// NewGeoCounter2 creates a new GeoCounter2 with the provided metric name.
//
// Note: The maximum cardinality of metrics produced will be 1024.
func NewGeoCounter2(name string) *GeoCounter2 {
	b, a := splitName(name)
	n := formatName(b, a, "geohash", "")
	if !strings.HasSuffix(n, `geohash=""}`) {
		panic("wtf") // should never happen
	}
	return &GeoCounter2{name: n}
}

// Inc increments the counter for the specified latitude and longitude.
func (c *GeoCounter2) Inc(lat, lng float64) {
	if c != nil {
		// this should always be true, but we need it to satisfy the bounds checker
		if h := geohash2(lat, lng); h < 1<<(5*2) {
			atomic.AddUint64(&c.ctr[h], 1)
		}
	}
}

// IncUnknown increments the unknown counter.
func (c *GeoCounter2) IncUnknown() {
	atomic.AddUint64(&c.unk, 1)
}

// Reset zeroes every bucket and the unknown counter, so the gauge can be
// rebuilt from scratch on the next pass.
func (c *GeoCounter2) Reset() {
	for i := range c.ctr {
		atomic.StoreUint64(&c.ctr[i], 0)
	}
	atomic.StoreUint64(&c.unk, 0)
}

// WritePrometheus writes the Prometheus text metrics.
func (c *GeoCounter2) WritePrometheus(w io.Writer) {
	n := len(c.name)
	b := make([]byte, 0, n+2+1+20+1)
	b = append(b, c.name...)
	w.Write(append(strconv.AppendUint(append(b, ' '), atomic.LoadUint64(&c.unk), 10), '\n'))
	b = append(b, `"} `...)
	_ = b[n-2] // bounds check hint
	for h := uint64(0); h < 1<<(5*2); h++ {
		if v := atomic.LoadUint64(&c.ctr[h]); v != 0 {
			b[n-1] = "0123456789bcdefghjkmnpqrstuvwxyz"[(h>>0)&0x1f]
			b[n-2] = "0123456789bcdefghjkmnpqrstuvwxyz"[(h>>5)&0x1f]
			w.Write(append(strconv.AppendUint(b, v, 10), '\n'))
		}
	}
}

func geohash2(lat, lng float64) uint64 {
	return geohash.EncodeIntWithPrecision(lat, lng, 5*2)
}

// GeoPoint is one peer's resolved location, or an unresolved one when
// Known is false.
type GeoPoint struct {
	Lat, Lng float64
	Known    bool
}

// ConnectedPeers is the omgpp_connected_peers gauge: the number of
// currently-connected peers, bucketed by geohash. Unlike a plain
// counter, a connected-peer count can go down as well as up, so Refresh
// rebuilds the whole gauge from the caller's current peer list each
// cycle instead of incrementally patching individual buckets.
type ConnectedPeers struct {
	geo *GeoCounter2
}

// NewConnectedPeers creates the omgpp_connected_peers metric family.
func NewConnectedPeers() *ConnectedPeers {
	return &ConnectedPeers{geo: NewGeoCounter2(`omgpp_connected_peers`)}
}

// Refresh replaces the gauge's contents with one observation per point
// in points, resolved or unresolved.
func (c *ConnectedPeers) Refresh(points []GeoPoint) {
	c.geo.Reset()
	for _, p := range points {
		if p.Known {
			c.geo.Inc(p.Lat, p.Lng)
		} else {
			c.geo.IncUnknown()
		}
	}
}

// WritePrometheus writes the gauge's current state in Prometheus text
// format.
func (c *ConnectedPeers) WritePrometheus(w io.Writer) {
	c.geo.WritePrometheus(w)
}
