// Package geo normalizes free-text location expressions into coordinates
// with an honest uncertainty radius, and snaps raw GPS points to plausible
// public-space anchors. The math in this file is pure; geocoding and anchor
// lookups are injected collaborators.
package geo

import "math"

const earthRadiusM = 6371000.0

// LatLon is a WGS84 coordinate in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b LatLon) float64 {
	p1 := a.Lat * math.Pi / 180
	p2 := b.Lat * math.Pi / 180
	dphi := (b.Lat - a.Lat) * math.Pi / 180
	dl := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// xyM projects a point into local meters around origin using an
// equirectangular approximation. Accurate enough for the sub-kilometer
// distances snapping works with.
func xyM(origin, p LatLon) (x, y float64) {
	x = (p.Lon - origin.Lon) * math.Pi / 180 * earthRadiusM * math.Cos(origin.Lat*math.Pi/180)
	y = (p.Lat - origin.Lat) * math.Pi / 180 * earthRadiusM
	return x, y
}

// latLonFromXY is the inverse of xyM.
func latLonFromXY(origin LatLon, x, y float64) LatLon {
	lat := origin.Lat + y/earthRadiusM*180/math.Pi
	lon := origin.Lon + x/(earthRadiusM*math.Cos(origin.Lat*math.Pi/180))*180/math.Pi
	return LatLon{Lat: lat, Lon: lon}
}

// nearestOnPolyline finds the closest point on a polyline to the query,
// the distance in meters, and the unit direction of the closest segment.
func nearestOnPolyline(origin LatLon, pts []LatLon, q LatLon) (best LatLon, distM float64, dirX, dirY float64) {
	qx, qy := xyM(origin, q)
	distM = math.Inf(1)
	best = q
	dirX, dirY = 1, 0

	for i := 0; i+1 < len(pts); i++ {
		ax, ay := xyM(origin, pts[i])
		bx, by := xyM(origin, pts[i+1])
		dx, dy := bx-ax, by-ay
		seg2 := dx*dx + dy*dy
		if seg2 <= 1e-9 {
			continue
		}
		t := ((qx-ax)*dx + (qy-ay)*dy) / seg2
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		px, py := ax+t*dx, ay+t*dy
		d := math.Hypot(qx-px, qy-py)
		if d < distM {
			distM = d
			best = latLonFromXY(origin, px, py)
			segLen := math.Sqrt(seg2)
			dirX, dirY = dx/segLen, dy/segLen
		}
	}
	return best, distM, dirX, dirY
}

// offsetM shifts a point by (dx, dy) meters.
func offsetM(origin, p LatLon, dx, dy float64) LatLon {
	x, y := xyM(origin, p)
	return latLonFromXY(origin, x+dx, y+dy)
}
