package server

import (
	"io"

	"github.com/omgpp-project/omgpp/metricsx"
)

// enableGeoMetrics loads cfg's IP2Location database, if configured, and
// attaches the geohash-bucketed connected-peer gauge it feeds.
func (s *Server) enableGeoMetrics(path string) error {
	geo, err := loadGeoIP(path)
	if err != nil {
		return err
	}
	s.geo = geo
	s.peerMetrics = metricsx.NewConnectedPeers()
	return nil
}

// refreshPeerMetrics rebuilds the connected-peer gauge from the
// tracker's current Connected peers. It is a no-op if geo metrics were
// never enabled.
func (s *Server) refreshPeerMetrics() {
	if s.geo == nil {
		return
	}
	active := s.tr.ActiveClients()
	points := make([]metricsx.GeoPoint, 0, len(active))
	for _, a := range active {
		lat, lng, ok := s.geo.LookupLatLng(a.Endpoint.Addr())
		points = append(points, metricsx.GeoPoint{Lat: lat, Lng: lng, Known: ok})
	}
	s.peerMetrics.Refresh(points)
}

// WritePrometheus writes the geohash-bucketed connected-peer gauge in
// Prometheus text format. It writes nothing if geo metrics were never
// enabled.
func (s *Server) WritePrometheus(w io.Writer) {
	if s.peerMetrics == nil {
		return
	}
	s.peerMetrics.WritePrometheus(w)
}
