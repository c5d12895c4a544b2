package geo

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/propwatch/propwatch/engine/domain"
)

// Geocoder resolves a textual query to a coordinate. ok is false when the
// service found nothing; err is reserved for transport failures.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (LatLon, bool, error)
}

// Bounds is the plausible geographic region for incoming reports.
// Anything resolving outside it is rejected, never silently accepted.
type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Contains reports whether p falls inside the bounds. Zero bounds accept
// everything.
func (b Bounds) Contains(p LatLon) bool {
	if b == (Bounds{}) {
		return true
	}
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Accuracy radii in meters, by expression source.
const (
	accGPSPrecise = 10
	accGPSRounded = 15
	accGeocoded   = 25
)

// Normalizer turns a validated location expression into a
// NormalizedLocation. Deterministic for the same raw text and a frozen
// anchor snapshot; an updated snapshot may legitimately change output
// across runs.
type Normalizer struct {
	Geocoder Geocoder
	Snapper  Snapper
	Bounds   Bounds
	Cache    *GeocodeCache
}

// Normalize resolves, bounds-checks, snaps, and jitters one expression.
// Expected failures return domain.NormalizeError wrapping ErrOutsideBounds
// or ErrUnresolvable.
func (n Normalizer) Normalize(ctx context.Context, expr domain.LocationExpr) (domain.NormalizedLocation, error) {
	switch expr.Kind {
	case domain.ExprCoords:
		return n.normalizeCoords(ctx, expr)
	case domain.ExprAddress, domain.ExprCrossing:
		return n.normalizeQuery(ctx, expr)
	default:
		return domain.NormalizedLocation{}, domain.NewNormalizeError(expr.Raw, domain.ErrUnresolvable)
	}
}

func (n Normalizer) normalizeCoords(ctx context.Context, expr domain.LocationExpr) (domain.NormalizedLocation, error) {
	at := LatLon{Lat: expr.Lat, Lon: expr.Lon}
	if !n.Bounds.Contains(at) {
		return domain.NormalizedLocation{}, domain.NewNormalizeError(expr.Raw, domain.ErrOutsideBounds)
	}

	acc := accGPSRounded
	if expr.Precise {
		acc = accGPSPrecise
	}

	snapped, ok := n.Snapper.Snap(ctx, at)
	src := domain.SnapGPS
	if !ok {
		src = domain.SnapNone
	}

	final := jitter(snapped, expr.Raw, acc)
	return domain.NormalizedLocation{Lat: final.Lat, Lon: final.Lon, AccuracyM: acc, Snap: src}, nil
}

func (n Normalizer) normalizeQuery(ctx context.Context, expr domain.LocationExpr) (domain.NormalizedLocation, error) {
	var at LatLon
	hit := false
	if n.Cache != nil {
		at, hit = n.Cache.Get(expr.Query)
	}
	if !hit {
		if n.Geocoder == nil {
			return domain.NormalizedLocation{}, domain.NewNormalizeError(expr.Raw, domain.ErrUnresolvable)
		}
		p, ok, err := n.Geocoder.Geocode(ctx, expr.Query)
		if err != nil {
			return domain.NormalizedLocation{}, err
		}
		if !ok {
			return domain.NormalizedLocation{}, domain.NewNormalizeError(expr.Raw, domain.ErrUnresolvable)
		}
		at = p
		if n.Cache != nil {
			n.Cache.Put(expr.Query, at)
		}
	}

	if !n.Bounds.Contains(at) {
		return domain.NormalizedLocation{}, domain.NewNormalizeError(expr.Raw, domain.ErrOutsideBounds)
	}

	src := domain.SnapStreet
	if expr.Kind == domain.ExprCrossing {
		src = domain.SnapCrossing
	}

	final := jitter(at, expr.Query, accGeocoded)
	return domain.NormalizedLocation{Lat: final.Lat, Lon: final.Lon, AccuracyM: accGeocoded, Snap: src}, nil
}

// jitter perturbs the stored coordinate within half the stated accuracy so
// the published point does not expose an overly exact private location
// while the uncertainty circle stays honest. Seeded from the raw
// expression, so identical input always lands on the same point.
func jitter(at LatLon, seed string, accuracyM int) LatLon {
	h := fnv.New64a()
	h.Write([]byte(seed))
	v := h.Sum64()

	frac := float64(v&0xffff) / 0xffff
	angle := float64((v>>16)&0xffff) / 0xffff * 2 * math.Pi
	r := frac * float64(accuracyM) * 0.5

	return offsetM(at, at, r*math.Cos(angle), r*math.Sin(angle))
}
