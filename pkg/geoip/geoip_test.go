package geoip

import (
	"testing"

	"github.com/cuemby/storjmonitor/pkg/types"
)

type fakeLookup struct {
	locations map[string]types.Location
	calls     int
}

func (f *fakeLookup) Lookup(ip string) (types.Location, bool) {
	f.calls++
	loc, ok := f.locations[ip]
	return loc, ok
}

func TestResolveCachesHitsAndMisses(t *testing.T) {
	fl := &fakeLookup{locations: map[string]types.Location{"1.2.3.4": {Country: "US"}}}
	c := NewCache(fl, 10)

	got := c.Resolve("1.2.3.4")
	if got.Country != "US" {
		t.Fatalf("Resolve(found ip) = %+v, want US", got)
	}
	got = c.Resolve("1.2.3.4")
	if got.Country != "US" || fl.calls != 1 {
		t.Errorf("expected cached result on second call, calls = %d", fl.calls)
	}

	miss := c.Resolve("9.9.9.9")
	if miss != Unknown {
		t.Errorf("Resolve(unknown ip) = %+v, want Unknown", miss)
	}
	c.Resolve("9.9.9.9")
	if fl.calls != 2 {
		t.Errorf("expected miss result to be cached too, calls = %d", fl.calls)
	}
}

func TestResolveWithNilLookupAlwaysUnknown(t *testing.T) {
	c := NewCache(nil, 10)
	if got := c.Resolve("1.2.3.4"); got != Unknown {
		t.Errorf("Resolve() with nil lookup = %+v, want Unknown", got)
	}
}

func TestCacheEvictsOldestOnOverflow(t *testing.T) {
	c := NewCache(nil, 2)
	c.Resolve("a")
	c.Resolve("b")
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	c.Resolve("c")
	if c.Len() != 2 {
		t.Errorf("Len() after overflow = %d, want 2 (bounded)", c.Len())
	}
}

func TestNewCacheDefaultsBoundedSize(t *testing.T) {
	c := NewCache(nil, 0)
	if c.maxSize != defaultCacheSize {
		t.Errorf("maxSize = %d, want default %d", c.maxSize, defaultCacheSize)
	}
}
