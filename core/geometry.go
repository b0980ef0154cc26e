package core

import (
	"math"

	"github.com/signalsfoundry/scene-reconciler/model"
	"gonum.org/v1/gonum/spatial/r3"
)

// WGS84 reference ellipsoid.
const (
	WGS84SemiMajorAxis = 6378137.0
	WGS84Flattening    = 1 / 298.257223563
)

var (
	wgs84SemiMinorAxis = WGS84SemiMajorAxis * (1 - WGS84Flattening)
	wgs84E2            = WGS84Flattening * (2 - WGS84Flattening)
	wgs84EP2           = wgs84E2 / (1 - wgs84E2)
)

// Vec3 is an ECEF vector in metres (or metres per second for velocities).
type Vec3 = r3.Vec

// ECEFToGeodetic converts a WGS84 geocentric position to latitude and
// longitude in degrees and ellipsoidal height in metres.
//
// It uses Heikkinen's closed form, which is exact to well under a millimetre
// for points near the Earth's surface. ok is false for the zero vector, for
// non-finite input, and for points so deep inside the ellipsoid that the
// solution degenerates.
func ECEFToGeodetic(p Vec3) (g model.Geodetic, ok bool) {
	if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
		return model.Geodetic{}, false
	}
	if r3.Norm(p) == 0 {
		return model.Geodetic{}, false
	}

	a, b, e2 := WGS84SemiMajorAxis, wgs84SemiMinorAxis, wgs84E2
	z := p.Z
	r := math.Hypot(p.X, p.Y)

	bigE2 := a*a - b*b
	f := 54 * b * b * z * z
	g0 := r*r + (1-e2)*z*z - e2*bigE2
	if g0 == 0 {
		return model.Geodetic{}, false
	}
	c := e2 * e2 * f * r * r / (g0 * g0 * g0)
	s := math.Cbrt(1 + c + math.Sqrt(c*c+2*c))
	k := s + 1/s + 1
	pp := f / (3 * k * k * g0 * g0)
	q := math.Sqrt(1 + 2*e2*e2*pp)
	// Cancellation drives the radicand slightly negative near the polar axis.
	rad := math.Max(0, a*a/2*(1+1/q)-pp*(1-e2)*z*z/(q*(1+q))-pp*r*r/2)
	r0 := -(pp*e2*r)/(1+q) + math.Sqrt(rad)
	u := math.Hypot(r-e2*r0, z)
	v := math.Sqrt((r-e2*r0)*(r-e2*r0) + (1-e2)*z*z)
	if v == 0 {
		return model.Geodetic{}, false
	}
	z0 := b * b * z / (a * v)

	g = model.Geodetic{
		Latitude:  math.Atan2(z+wgs84EP2*z0, r) * 180 / math.Pi,
		Longitude: math.Atan2(p.Y, p.X) * 180 / math.Pi,
		Altitude:  u * (1 - b*b/(a*v)),
	}
	if !finite(g.Latitude) || !finite(g.Longitude) || !finite(g.Altitude) {
		return model.Geodetic{}, false
	}
	return g, true
}

// GeodeticToECEF converts a WGS84 geodetic position to ECEF metres.
func GeodeticToECEF(g model.Geodetic) Vec3 {
	lat := g.Latitude * math.Pi / 180
	lon := g.Longitude * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	n := WGS84SemiMajorAxis / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return Vec3{
		X: (n + g.Altitude) * cosLat * cosLon,
		Y: (n + g.Altitude) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + g.Altitude) * sinLat,
	}
}

// Speed returns the magnitude of an ECEF velocity.
func Speed(v Vec3) float64 {
	return r3.Norm(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
