package xconn

import "github.com/oschwald/maxminddb-golang"

// HealthScorer re-orders candidate targets that are already in the same
// host-state rank (see rank() in resolver_dns.go) by geographic proximity
// to a configured home location, preferring targets in the same country as
// the caller. It never changes the relative order of whitelisted vs.
// healthy vs. degraded targets -- only the order within each group.
type HealthScorer struct {
	geoDB     *maxminddb.Reader
	homeGeoID uint
}

type geoRecord struct {
	Country struct {
		GeoNameID uint `maxminddb:"geoname_id"`
	} `maxminddb:"country"`
}

// NewHealthScorer opens geoDBFile (a MaxMind GeoLite2-City-style database)
// and returns a scorer that prefers targets whose country GeoName ID
// matches homeGeoID.
func NewHealthScorer(geoDBFile string, homeGeoID uint) (*HealthScorer, error) {
	if geoDBFile == "" {
		geoDBFile = "/usr/share/GeoIP/GeoLite2-City.mmdb"
	}
	geoDB, err := maxminddb.Open(geoDBFile)
	if err != nil {
		return nil, err
	}
	return &HealthScorer{geoDB: geoDB, homeGeoID: homeGeoID}, nil
}

// score returns 0 for a target in the home country, 1 otherwise (including
// lookup failures, which are treated as "unknown" rather than preferred).
func (h *HealthScorer) score(t Target) int {
	var record geoRecord
	if err := h.geoDB.Lookup(t.Addr, &record); err != nil {
		Log.WithField("target", t.String()).WithError(err).Debug("geo lookup failed")
		return 1
	}
	if record.Country.GeoNameID == h.homeGeoID {
		return 0
	}
	return 1
}

// Close releases the underlying database file.
func (h *HealthScorer) Close() error {
	return h.geoDB.Close()
}
