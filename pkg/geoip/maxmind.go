package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/cuemby/storjmonitor/pkg/types"
)

// MaxMindLookup is a Lookup backed by a MaxMind-format GeoIP2 database.
type MaxMindLookup struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the database at path. Callers own the returned
// lookup and must call Close when done.
func OpenMaxMind(path string) (*MaxMindLookup, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindLookup{reader: reader}, nil
}

// Close releases the underlying database file.
func (m *MaxMindLookup) Close() error {
	return m.reader.Close()
}

// Lookup implements Lookup.
func (m *MaxMindLookup) Lookup(ip string) (types.Location, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return types.Location{}, false
	}

	record, err := m.reader.City(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return types.Location{}, false
	}

	return types.Location{
		Country: record.Country.IsoCode,
		Lat:     record.Location.Latitude,
		Lon:     record.Location.Longitude,
	}, true
}
