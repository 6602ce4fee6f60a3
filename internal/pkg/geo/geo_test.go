package geo

import (
	"math"
	"testing"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// San Francisco to Oakland is roughly 13 km.
	sf := NewPoint(37.7749, -122.4194)
	oak := NewPoint(37.8044, -122.2712)

	km := DistanceMeters(sf, oak) / 1000
	if math.Abs(km-13.4) > 0.5 {
		t.Fatalf("expected ~13.4km, got %f", km)
	}
	if !Within(sf, oak, 25) {
		t.Fatal("expected Oakland within 25km of SF")
	}
	if Within(sf, oak, 5) {
		t.Fatal("expected Oakland outside 5km of SF")
	}
}

func TestPointValidate(t *testing.T) {
	if err := (Point{-122.4, 37.7}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Point{200, 0}).Validate(); err == nil {
		t.Fatal("expected longitude error")
	}
	if err := (Point{0, -91}).Validate(); err == nil {
		t.Fatal("expected latitude error")
	}
	p := NewPoint(10, 20)
	if p.Lat() != 10 || p.Lon() != 20 {
		t.Fatalf("unexpected point %v", p)
	}
}
