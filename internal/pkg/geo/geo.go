/*
Package geo holds the point type shared by users, rides and messages and the
great-circle distance used for "nearby" queries.
*/
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Point is a GeoJSON-style position: [longitude, latitude].
type Point [2]float64

// NewPoint builds a Point from latitude and longitude.
func NewPoint(lat, lon float64) Point {
	return Point{lon, lat}
}

// Lon returns the longitude.
func (p Point) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p Point) Lat() float64 { return p[1] }

// Validate checks that the point lies within WGS84 bounds.
func (p Point) Validate() error {
	if p.Lon() < -180 || p.Lon() > 180 {
		return fmt.Errorf("longitude %f out of range", p.Lon())
	}
	if p.Lat() < -90 || p.Lat() > 90 {
		return fmt.Errorf("latitude %f out of range", p.Lat())
	}
	return nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// DistanceMeters returns the Haversine distance between two points.
func DistanceMeters(a, b Point) float64 {
	return Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// Within reports whether b lies within radiusKm kilometres of a.
func Within(a, b Point, radiusKm float64) bool {
	return DistanceMeters(a, b) <= radiusKm*1000
}
