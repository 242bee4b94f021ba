// Package geo resolves client IP addresses to ISO country codes using a
// MaxMind database. The gateway only needs the country; everything else in
// the record is ignored.
package geo

import (
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver maps an IP address to an ISO 3166-1 alpha-2 country code as
// stored in the database, e.g. "DE". An empty string means the lookup
// failed or the address is unknown.
type Resolver interface {
	Country(addr netip.Addr) string
}

// MaxMind resolves countries from a GeoIP2/GeoLite2 mmdb file.
type MaxMind struct {
	reader *maxminddb.Reader
}

// Open loads the database at path.
func Open(path string) (*MaxMind, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMind{reader: reader}, nil
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Country implements Resolver.
func (m *MaxMind) Country(addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}
	var record countryRecord
	if err := m.reader.Lookup(addr.AsSlice(), &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Close releases the underlying database.
func (m *MaxMind) Close() error {
	return m.reader.Close()
}

// Noop is a Resolver that never finds a country. Used when no database is
// configured.
type Noop struct{}

// Country implements Resolver.
func (Noop) Country(netip.Addr) string { return "" }
