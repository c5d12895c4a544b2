// Package match decides whether a new sighting corresponds to a spot the
// dataset already tracks.
package match

import (
	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/engine/geo"
)

// DefaultRadiusM is the proximity radius for treating two sightings as the
// same physical spot.
const DefaultRadiusM = 10.0

// Matcher finds the existing spot a report belongs to, if any.
// Matching is pure; the caller supplies the current view of the dataset,
// including spots created earlier in the same batch.
type Matcher struct {
	RadiusM float64
}

func (m Matcher) radius() float64 {
	if m.RadiusM > 0 {
		return m.RadiusM
	}
	return DefaultRadiusM
}

// Match returns the matched spot and true, or zero and false.
// A spot matches if the post's URL is among its contributing sources (the
// same post re-processed), or if it has the same kind and lies within the
// proximity radius, boundary inclusive. Among proximity candidates the nearest wins;
// ties keep the earliest spot in view order. Removed spots still match —
// the decision layer owns what a re-sighting of a removed spot means.
func (m Matcher) Match(loc domain.NormalizedLocation, kind domain.Kind, sourceURL string, view []domain.Report) (domain.Report, bool) {
	for _, s := range view {
		if s.HasSource(sourceURL) {
			return s, true
		}
	}

	at := geo.LatLon{Lat: loc.Lat, Lon: loc.Lon}
	var best domain.Report
	bestD := -1.0
	for _, s := range view {
		if s.Kind != kind {
			continue
		}
		d := geo.HaversineM(at, geo.LatLon{Lat: s.Location.Lat, Lon: s.Location.Lon})
		if d > m.radius() {
			continue
		}
		if bestD < 0 || d < bestD {
			best, bestD = s, d
		}
	}
	return best, bestD >= 0
}
