package geo

import (
	"errors"
	"io/fs"

	"github.com/propwatch/propwatch/pkg/atomicjson"
)

type cacheEntry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeocodeCache memoizes geocoder answers by query string so re-processed
// posts never hit the geocoding service twice. It is owned by the
// normalizer's construction site and persisted between runs.
type GeocodeCache struct {
	path    string
	entries map[string]cacheEntry
	dirty   bool
}

// LoadGeocodeCache reads the cache file, starting empty if it is absent.
func LoadGeocodeCache(path string) (*GeocodeCache, error) {
	c := &GeocodeCache{path: path, entries: make(map[string]cacheEntry)}
	if err := atomicjson.Load(path, &c.entries); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	return c, nil
}

// Get returns a cached coordinate.
func (c *GeocodeCache) Get(query string) (LatLon, bool) {
	e, ok := c.entries[query]
	return LatLon{Lat: e.Lat, Lon: e.Lon}, ok
}

// Put stores a resolved coordinate.
func (c *GeocodeCache) Put(query string, at LatLon) {
	c.entries[query] = cacheEntry{Lat: at.Lat, Lon: at.Lon}
	c.dirty = true
}

// Len returns the number of cached queries.
func (c *GeocodeCache) Len() int { return len(c.entries) }

// Save writes the cache back atomically if anything changed.
func (c *GeocodeCache) Save() error {
	if !c.dirty || c.path == "" {
		return nil
	}
	if err := atomicjson.Save(c.path, c.entries); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
