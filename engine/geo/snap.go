package geo

import (
	"context"
	"math"
)

// POIKind tags the street-furniture anchors snapping prefers.
type POIKind string

const (
	POIBench POIKind = "bench"
	POIWaste POIKind = "waste"
	POILamp  POIKind = "lamp"
)

// POI is a public street-furniture point.
type POI struct {
	At   LatLon
	Kind POIKind
}

// Way is a public way with its polyline geometry. Walkable separates
// footways/paths from vehicle roads.
type Way struct {
	Highway  string
	Walkable bool
	Points   []LatLon
}

// AnchorSource supplies public-space anchors around a point. Implementations
// query a frozen snapshot or a live map service; snapping is deterministic
// for any fixed snapshot.
type AnchorSource interface {
	POIs(ctx context.Context, at LatLon, radiusM float64) ([]POI, error)
	Ways(ctx context.Context, at LatLon, radiusM float64, walkOnly bool) ([]Way, error)
	BuildingNearby(ctx context.Context, at LatLon, radiusM float64) (bool, error)
}

// Snapping search radii and offsets, in meters.
const (
	snapPOIRadiusM       = 15
	snapBaseRadiusM      = 120
	snapWalkRadiusM      = 220
	snapWalkAcceptM      = 45
	roadOffsetM          = 10
	buildingOffsetM      = 14
	walkNudgeM           = 4
	buildingCheckRadiusM = 6
	poiBuildingRadiusM   = 4
)

// Snapper adjusts a raw coordinate onto the nearest plausible public-access
// anchor: street furniture first, then walkable ways, then roads with a
// sidewalk offset, avoiding buildings. A point with no anchor inside the
// search radius stays where it is.
type Snapper struct {
	Anchors AnchorSource
}

// Snap returns the adjusted point and whether any anchor was applied.
// Anchor-source failures degrade to an unsnapped point rather than an error;
// the original coordinate is always a safe answer.
func (s Snapper) Snap(ctx context.Context, at LatLon) (LatLon, bool) {
	if s.Anchors == nil {
		return at, false
	}

	// Street furniture wins when close enough and not on a building.
	if pois, err := s.Anchors.POIs(ctx, at, snapPOIRadiusM); err == nil {
		if p, ok := nearestPOI(at, pois); ok {
			onBuilding, err := s.Anchors.BuildingNearby(ctx, p.At, poiBuildingRadiusM)
			if err == nil && !onBuilding {
				return p.At, true
			}
		}
	}

	ways, err := s.Anchors.Ways(ctx, at, snapBaseRadiusM, false)
	if err != nil || len(ways) == 0 {
		return at, false
	}

	pt, _, dirX, dirY, walkable, ok := bestWay(at, ways)
	if !ok {
		return at, false
	}

	// Roads are a fallback; look further for a real walkway first.
	if !walkable {
		if walks, err := s.Anchors.Ways(ctx, at, snapWalkRadiusM, true); err == nil {
			if wpt, wdist, wdx, wdy, _, wok := bestWay(at, walks); wok && wdist <= snapWalkAcceptM {
				pt, dirX, dirY, walkable = wpt, wdx, wdy, true
			}
		}
	}

	if !walkable {
		// Push sideways off the road centerline toward the reporter's
		// original position, approximating the sidewalk.
		nx, ny := -dirY, dirX
		sx, sy := xyM(at, pt)
		if -(sx*nx + sy*ny) < 0 {
			nx, ny = -nx, -ny
		}
		pt = offsetM(at, pt, nx*roadOffsetM, ny*roadOffsetM)
	}

	if near, err := s.Anchors.BuildingNearby(ctx, pt, buildingCheckRadiusM); err == nil && near {
		nx, ny := -dirY, dirX
		push := float64(walkNudgeM)
		if !walkable {
			push = buildingOffsetM
		}
		pt = offsetM(at, pt, nx*push, ny*push)
	}

	return pt, true
}

func nearestPOI(at LatLon, pois []POI) (POI, bool) {
	var best POI
	bestD := math.Inf(1)
	for _, p := range pois {
		if d := HaversineM(at, p.At); d < bestD {
			bestD, best = d, p
		}
	}
	return best, bestD <= snapPOIRadiusM
}

// bestWay prefers walkable ways over roads; within the same class the
// nearest wins.
func bestWay(at LatLon, ways []Way) (pt LatLon, distM, dirX, dirY float64, walkable, ok bool) {
	distM = math.Inf(1)
	for _, w := range ways {
		p, d, dx, dy := nearestOnPolyline(at, w.Points, at)
		if math.IsInf(d, 1) {
			continue
		}
		better := false
		switch {
		case !ok:
			better = true
		case w.Walkable && !walkable:
			better = true
		case w.Walkable == walkable && d < distM:
			better = true
		}
		if better {
			pt, distM, dirX, dirY, walkable, ok = p, d, dx, dy, w.Walkable, true
		}
	}
	return pt, distM, dirX, dirY, walkable, ok
}
