package utils

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

const unknownCountry = "Unknown"

// GeoResolver maps client IPs to country names for the request log.
type GeoResolver struct {
	db    *geoip2.Reader
	cache sync.Map // map[string]string
}

// NewGeoResolver opens the GeoIP database. An empty path or a missing file
// yields a resolver that answers "Unknown" for every address.
func NewGeoResolver(dbPath string) (*GeoResolver, error) {
	if dbPath == "" {
		return &GeoResolver{}, nil
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return &GeoResolver{}, fmt.Errorf("open geoip database %s: %w", dbPath, err)
	}
	return &GeoResolver{db: db}, nil
}

func (g *GeoResolver) Close() {
	if g != nil && g.db != nil {
		g.db.Close()
	}
}

// Country is safe to call even if GeoResolver is nil or has no database
func (g *GeoResolver) Country(ipStr string) string {
	if g == nil || g.db == nil {
		return unknownCountry
	}

	if val, ok := g.cache.Load(ipStr); ok {
		return val.(string)
	}

	country := unknownCountry
	if ip := net.ParseIP(ipStr); ip != nil {
		record, err := g.db.Country(ip)
		if err == nil && record.Country.Names["en"] != "" {
			country = record.Country.Names["en"]
		}
	}

	g.cache.Store(ipStr, country)
	return country
}
