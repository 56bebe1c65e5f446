// Package geoip resolves remote IPs to coarse location data behind a small
// bounded cache. The database format is out of scope; callers inject a
// Lookup implementation.
package geoip

import (
	"github.com/cuemby/storjmonitor/pkg/types"
)

// Lookup resolves an IP to a location, returning ok=false when the address
// is not found in the backing database.
type Lookup interface {
	Lookup(ip string) (types.Location, bool)
}

const defaultCacheSize = 5000

// Unknown is the sentinel location stored for addresses the backing
// database has no record of.
var Unknown = types.Location{Country: "Unknown"}

// Cache is an LRU-ish bounded ip -> Location cache. Eviction on overflow
// removes an arbitrary existing entry (oldest insertion order), matching
// the source behavior rather than a strict LRU.
type Cache struct {
	lookup  Lookup
	maxSize int

	entries map[string]types.Location
	order   []string // insertion order, for arbitrary-oldest eviction
}

// NewCache builds a cache bounded at maxSize entries (0 or negative uses
// the default of 5000).
func NewCache(lookup Lookup, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &Cache{
		lookup:  lookup,
		maxSize: maxSize,
		entries: make(map[string]types.Location, maxSize),
	}
}

// Resolve returns the cached location for ip, invoking the injected lookup
// on a cache miss and remembering the result (including "not found").
func (c *Cache) Resolve(ip string) types.Location {
	if loc, ok := c.entries[ip]; ok {
		return loc
	}

	loc := Unknown
	if c.lookup != nil {
		if found, ok := c.lookup.Lookup(ip); ok {
			loc = found
		}
	}

	c.put(ip, loc)
	return loc
}

func (c *Cache) put(ip string, loc types.Location) {
	if len(c.entries) >= c.maxSize {
		if len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[ip] = loc
	c.order = append(c.order, ip)
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	return len(c.entries)
}
