package server

import (
	"fmt"
	"net/netip"
	"os"
	"sync"

	"github.com/pg9182/ip2x"
)

// geoIPMgr wraps a file-backed IP2Location database used to bucket
// connected-peer counts by geohash prefix for ops dashboards. Adapted
// from the teacher's ip2xMgr: same load/lookup shape, generalized from
// HTTP request geolocation to connected-peer geolocation.
type geoIPMgr struct {
	mu   sync.RWMutex
	file *os.File
	db   *ip2x.DB
}

// loadGeoIP opens and validates an IP2Location database at path.
func loadGeoIP(path string) (*geoIPMgr, error) {
	m := new(geoIPMgr)
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Load replaces the currently loaded database with the one at name. If
// name is empty, the existing database, if any, is reopened.
func (m *geoIPMgr) Load(name string) error {
	if name == "" {
		m.mu.RLock()
		if m.file == nil {
			m.mu.RUnlock()
			return fmt.Errorf("no ip2location database loaded")
		}
		name = m.file.Name()
		m.mu.RUnlock()
	}

	f, err := os.Open(name)
	if err != nil {
		return err
	}

	db, err := ip2x.New(f)
	if err != nil {
		f.Close()
		return err
	}
	if p, _ := db.Info(); p != ip2x.IP2Location {
		f.Close()
		return fmt.Errorf("not an ip2location database")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file != nil {
		m.file.Close()
	}
	m.file = f
	m.db = db
	return nil
}

// LookupFields returns the IP2Location record for ip, if a database is
// loaded.
func (m *geoIPMgr) LookupFields(ip netip.Addr) (ip2x.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return ip2x.Record{}, fmt.Errorf("no ip2location database loaded")
	}
	return m.db.Lookup(ip)
}

// LookupLatLng resolves ip to a coordinate pair. ok is false if no
// database is loaded or the record has no location fields for ip.
func (m *geoIPMgr) LookupLatLng(ip netip.Addr) (lat, lng float64, ok bool) {
	r, err := m.LookupFields(ip)
	if err != nil {
		return 0, 0, false
	}
	var okLat, okLng bool
	lat, okLat = r.GetFloat64(ip2x.Latitude)
	lng, okLng = r.GetFloat64(ip2x.Longitude)
	return lat, lng, okLat && okLng
}

func (m *geoIPMgr) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}
