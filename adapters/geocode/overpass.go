package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/pkg/resilience"
)

// Overpass supplies map anchors for snapping. Several public endpoints
// are tried in order; each sits behind its own circuit breaker so one
// overloaded mirror does not stall every lookup.
type Overpass struct {
	endpoints []string
	breakers  []*resilience.Breaker
	client    *resty.Client
	limiter   *resilience.Limiter
	log       *slog.Logger
}

// NewOverpass builds an anchor source over the given interpreter URLs.
func NewOverpass(endpoints []string, userAgent string, log *slog.Logger) *Overpass {
	if log == nil {
		log = slog.Default()
	}
	breakers := make([]*resilience.Breaker, len(endpoints))
	for i := range breakers {
		breakers[i] = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &Overpass{
		endpoints: endpoints,
		breakers:  breakers,
		client: resty.New().
			SetHeader("User-Agent", userAgent).
			SetTimeout(25 * time.Second),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 1, Burst: 1}),
		log:     log,
	}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}

// POIs returns the street furniture around a point.
func (o *Overpass) POIs(ctx context.Context, at geo.LatLon, radiusM float64) ([]geo.POI, error) {
	q := fmt.Sprintf(`[out:json][timeout:10];
(
  node(around:%.0f,%f,%f)["amenity"="bench"];
  node(around:%.0f,%f,%f)["amenity"="waste_basket"];
  node(around:%.0f,%f,%f)["highway"="street_lamp"];
);
out;`, radiusM, at.Lat, at.Lon, radiusM, at.Lat, at.Lon, radiusM, at.Lat, at.Lon)

	resp, err := o.run(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []geo.POI
	for _, el := range resp.Elements {
		if el.Type != "node" {
			continue
		}
		kind, ok := poiKind(el.Tags)
		if !ok {
			continue
		}
		out = append(out, geo.POI{At: geo.LatLon{Lat: el.Lat, Lon: el.Lon}, Kind: kind})
	}
	return out, nil
}

// Ways returns the public ways around a point, with geometry.
func (o *Overpass) Ways(ctx context.Context, at geo.LatLon, radiusM float64, walkOnly bool) ([]geo.Way, error) {
	filter := `["highway"]`
	if walkOnly {
		filter = `["highway"~"footway|path|pedestrian|steps|cycleway|living_street"]`
	}
	q := fmt.Sprintf(`[out:json][timeout:10];
way(around:%.0f,%f,%f)%s;
out geom;`, radiusM, at.Lat, at.Lon, filter)

	resp, err := o.run(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []geo.Way
	for _, el := range resp.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		highway := el.Tags["highway"]
		w := geo.Way{Highway: highway, Walkable: walkableHighway(highway)}
		for _, p := range el.Geometry {
			w.Points = append(w.Points, geo.LatLon{Lat: p.Lat, Lon: p.Lon})
		}
		out = append(out, w)
	}
	return out, nil
}

// BuildingNearby reports whether any building footprint is within radiusM.
func (o *Overpass) BuildingNearby(ctx context.Context, at geo.LatLon, radiusM float64) (bool, error) {
	q := fmt.Sprintf(`[out:json][timeout:10];
way(around:%.0f,%f,%f)["building"];
out ids 1;`, radiusM, at.Lat, at.Lon)

	resp, err := o.run(ctx, q)
	if err != nil {
		return false, err
	}
	return len(resp.Elements) > 0, nil
}

// run executes one Overpass query against the first healthy endpoint.
func (o *Overpass) run(ctx context.Context, query string) (*overpassResponse, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i, endpoint := range o.endpoints {
		var parsed overpassResponse
		err := o.breakers[i].Call(ctx, func(ctx context.Context) error {
			resp, err := o.client.R().
				SetContext(ctx).
				SetFormData(map[string]string{"data": query}).
				SetResult(&parsed).
				Post(endpoint)
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("overpass: status %d", resp.StatusCode())
			}
			return nil
		})
		if err == nil {
			return &parsed, nil
		}
		lastErr = err
		o.log.Warn("overpass endpoint failed, trying next", "endpoint", endpoint, "error", err)
	}
	return nil, fmt.Errorf("overpass: all endpoints failed: %w", lastErr)
}

func poiKind(tags map[string]string) (geo.POIKind, bool) {
	switch {
	case tags["amenity"] == "bench":
		return geo.POIBench, true
	case tags["amenity"] == "waste_basket":
		return geo.POIWaste, true
	case tags["highway"] == "street_lamp":
		return geo.POILamp, true
	default:
		return "", false
	}
}

func walkableHighway(highway string) bool {
	switch highway {
	case "footway", "path", "pedestrian", "steps", "cycleway", "living_street":
		return true
	default:
		return false
	}
}
