package store

import (
	"fmt"
	"time"

	"github.com/propwatch/propwatch/engine/domain"
)

// The dataset on disk is a GeoJSON FeatureCollection so the mapping
// frontend can consume it directly. One feature per tracked spot, point
// geometry in lon/lat order, everything else in properties.

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string     `json:"type"`
	Geometry   geometry   `json:"geometry"`
	Properties properties `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type properties struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Category          string    `json:"category,omitempty"`
	Status            string    `json:"status"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	SeenCount         int       `json:"seen_count"`
	EntityKey         string    `json:"entity_key,omitempty"`
	EntityDisplay     string    `json:"entity_display"`
	EntityDesc        string    `json:"entity_desc"`
	NeedsVerification bool      `json:"needs_verification"`
	AccuracyM         int       `json:"accuracy_m"`
	SnapSource        string    `json:"snap_source"`
	SourceURL         string    `json:"source_url,omitempty"`
	Sources           []string  `json:"sources,omitempty"`
	Media             []string  `json:"media,omitempty"`
}

func toFeature(r domain.Report) feature {
	return feature{
		Type: "Feature",
		Geometry: geometry{
			Type:        "Point",
			Coordinates: [2]float64{r.Location.Lon, r.Location.Lat},
		},
		Properties: properties{
			ID:                r.ID,
			Kind:              string(r.Kind),
			Category:          r.Category,
			Status:            string(r.Status),
			FirstSeen:         r.FirstSeen,
			LastSeen:          r.LastSeen,
			SeenCount:         r.SeenCount,
			EntityKey:         r.Entity.Key,
			EntityDisplay:     r.Entity.Display,
			EntityDesc:        r.Entity.Desc,
			NeedsVerification: r.NeedsVerification,
			AccuracyM:         r.Location.AccuracyM,
			SnapSource:        string(r.Location.Snap),
			SourceURL:         r.SourceURL,
			Sources:           r.Sources,
			Media:             r.Media,
		},
	}
}

func fromFeature(f feature) (domain.Report, error) {
	if f.Geometry.Type != "Point" {
		return domain.Report{}, fmt.Errorf("feature %s: geometry %q, want Point", f.Properties.ID, f.Geometry.Type)
	}
	p := f.Properties
	return domain.Report{
		ID:       p.ID,
		Kind:     domain.Kind(p.Kind),
		Category: p.Category,
		Entity: domain.EntityRef{
			Key:               p.EntityKey,
			Display:           p.EntityDisplay,
			Desc:              p.EntityDesc,
			NeedsVerification: p.NeedsVerification,
		},
		Location: domain.NormalizedLocation{
			Lat:       f.Geometry.Coordinates[1],
			Lon:       f.Geometry.Coordinates[0],
			AccuracyM: p.AccuracyM,
			Snap:      domain.SnapSource(p.SnapSource),
		},
		FirstSeen:         p.FirstSeen,
		LastSeen:          p.LastSeen,
		SeenCount:         p.SeenCount,
		Status:            domain.Status(p.Status),
		NeedsVerification: p.NeedsVerification,
		SourceURL:         p.SourceURL,
		Sources:           p.Sources,
		Media:             p.Media,
	}, nil
}

func encode(spots []domain.Report) featureCollection {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(spots))}
	for _, s := range spots {
		fc.Features = append(fc.Features, toFeature(s))
	}
	return fc
}

func decode(fc featureCollection) ([]domain.Report, error) {
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("top-level type %q, want FeatureCollection", fc.Type)
	}
	out := make([]domain.Report, 0, len(fc.Features))
	for _, f := range fc.Features {
		r, err := fromFeature(f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
