package store

import (
	"fmt"

	"github.com/propwatch/propwatch/engine/domain"
)

// Normalize repairs recoverable gaps in the dataset in place and returns
// the number of spots touched: verify-or-unknown entity fields and
// first/last-seen backfill. It never invents entity names.
func (s *Store) Normalize() int {
	fixed := 0
	for i := range s.spots {
		sp := &s.spots[i]
		changed := false

		if sp.Entity.Display == "" {
			sp.Entity = domain.UnknownEntity()
			sp.NeedsVerification = true
			changed = true
		} else if sp.Entity.Desc == "" {
			sp.Entity.Desc = fmt.Sprintf("%s (needs verification)", sp.Entity.Display)
			sp.Entity.NeedsVerification = true
			sp.NeedsVerification = true
			changed = true
		}

		if sp.FirstSeen.IsZero() && !sp.LastSeen.IsZero() {
			sp.FirstSeen = sp.LastSeen
			changed = true
		}
		if sp.LastSeen.IsZero() && !sp.FirstSeen.IsZero() {
			sp.LastSeen = sp.FirstSeen
			changed = true
		}

		if changed {
			fixed++
			s.dirty = true
		}
	}
	return fixed
}

// Check reports consistency problems without touching the dataset:
// out-of-range coordinates, duplicate IDs, missing entity descriptions,
// and seen/time fields that contradict each other.
func (s *Store) Check() []string {
	var issues []string
	seen := make(map[string]bool, len(s.spots))
	for _, sp := range s.spots {
		if seen[sp.ID] {
			issues = append(issues, fmt.Sprintf("%s: duplicate id", sp.ID))
		}
		seen[sp.ID] = true

		if sp.Location.Lat < -90 || sp.Location.Lat > 90 ||
			sp.Location.Lon < -180 || sp.Location.Lon > 180 {
			issues = append(issues, fmt.Sprintf("%s: coordinates out of range (%f, %f)",
				sp.ID, sp.Location.Lat, sp.Location.Lon))
		}
		if sp.Entity.Display == "" || sp.Entity.Desc == "" {
			issues = append(issues, fmt.Sprintf("%s: missing entity description", sp.ID))
		}
		if sp.SeenCount < 1 {
			issues = append(issues, fmt.Sprintf("%s: seen_count %d", sp.ID, sp.SeenCount))
		}
		if sp.LastSeen.Before(sp.FirstSeen) {
			issues = append(issues, fmt.Sprintf("%s: last_seen before first_seen", sp.ID))
		}
	}
	return issues
}
