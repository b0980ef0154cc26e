package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/scene-reconciler/model"
)

func TestECEFToGeodeticEquatorPrimeMeridian(t *testing.T) {
	g, ok := ECEFToGeodetic(Vec3{X: WGS84SemiMajorAxis, Y: 0, Z: 0})
	if !ok {
		t.Fatalf("conversion failed")
	}
	if math.Abs(g.Latitude) > 1e-9 || math.Abs(g.Longitude) > 1e-9 || math.Abs(g.Altitude) > 1e-6 {
		t.Fatalf("got %+v, want lat=0 lon=0 alt=0", g)
	}
}

func TestECEFToGeodeticRoundTrip(t *testing.T) {
	for lat := -89.9; lat <= 89.9; lat += 7.3 {
		for lon := -179.5; lon <= 180; lon += 11.9 {
			for _, alt := range []float64{-400, 0, 1200, 11000, 400000} {
				want := model.Geodetic{Latitude: lat, Longitude: lon, Altitude: alt}
				got, ok := ECEFToGeodetic(GeodeticToECEF(want))
				if !ok {
					t.Fatalf("conversion failed for %+v", want)
				}
				if math.Abs(got.Latitude-want.Latitude) > 1e-6 || math.Abs(got.Longitude-want.Longitude) > 1e-6 {
					t.Fatalf("round trip %+v -> %+v exceeds 1e-6 degrees", want, got)
				}
				if math.Abs(got.Altitude-want.Altitude) > 1e-3 {
					t.Fatalf("round trip altitude %v -> %v", want.Altitude, got.Altitude)
				}
			}
		}
	}
}

func TestECEFToGeodeticRejectsDegenerateInput(t *testing.T) {
	cases := map[string]Vec3{
		"zero": {},
		"nan":  {X: math.NaN(), Y: 1, Z: 1},
		"inf":  {X: 1, Y: math.Inf(1), Z: 1},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			if g, ok := ECEFToGeodetic(p); ok {
				t.Fatalf("ECEFToGeodetic(%v) = %+v, want failure", p, g)
			}
		})
	}
}

func TestSpeed(t *testing.T) {
	if got := Speed(Vec3{X: 3, Y: 4}); got != 5 {
		t.Fatalf("Speed = %v, want 5", got)
	}
}

func TestECEFToGeodeticNearPoles(t *testing.T) {
	cases := []model.Geodetic{
		{Latitude: -90, Longitude: 10, Altitude: 1000},
		{Latitude: -90, Longitude: 10, Altitude: 10000},
		{Latitude: 90, Longitude: 0, Altitude: 0},
		{Latitude: 89.9999999, Longitude: 45, Altitude: 100},
		{Latitude: -89.99999, Longitude: -120, Altitude: 35000},
	}
	for _, want := range cases {
		got, ok := ECEFToGeodetic(GeodeticToECEF(want))
		if !ok {
			t.Fatalf("conversion failed for %+v", want)
		}
		if math.Abs(got.Latitude-want.Latitude) > 1e-6 {
			t.Fatalf("round trip latitude %+v -> %+v", want, got)
		}
		if math.Abs(got.Altitude-want.Altitude) > 1e-3 {
			t.Fatalf("round trip altitude %+v -> %+v", want, got)
		}
	}
}
