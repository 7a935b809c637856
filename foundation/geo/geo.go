// Package geo provides the small amount of geodesy needed to track vehicles between cities
package geo

import "math"

// EarthRadiusKm mean earth radius used by the haversine formula
const EarthRadiusKm = 6371.0

// metersPerDegree is the length of one degree of latitude, and of longitude at the equator
const metersPerDegree = 111300.0

// Point is a latitude longitude pair in decimal degrees
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewPoint convenience constructor for Point
func NewPoint(lat, lon float64) Point {
	return Point{Latitude: lat, Longitude: lon}
}

// IsValid returns true when the point is inside the legal latitude and longitude ranges
func (p Point) IsValid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

//DistanceKm returns the great-circle distance between two points in KILOMETERS using the haversine formula.
//the result is symmetric and zero for identical points
func DistanceKm(a, b Point) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// guard against h drifting just above 1 from floating point error
	h = math.Min(1, h)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

//PathDistanceKm sums the great-circle legs between consecutive points
func PathDistanceKm(points ...Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1], points[i])
	}
	return total
}

//LocalOffsetMeters returns the east-west and north-south distances in METERS from a to b, using the average
//latitude of the two points to scale longitude.
//adequate for points that are close together, will not produce good results where longitude rolls over
//from -179.9 to 179.9
func LocalOffsetMeters(a, b Point) (eastWest float64, northSouth float64) {
	lat := toRadians((a.Latitude + b.Latitude) / 2)
	northSouth = metersPerDegree * (b.Latitude - a.Latitude)
	eastWest = metersPerDegree * math.Cos(lat) * (b.Longitude - a.Longitude)
	return eastWest, northSouth
}

//LocalDistanceMeters approximate straight line distance in METERS between two nearby points
func LocalDistanceMeters(a, b Point) float64 {
	x, y := LocalOffsetMeters(a, b)
	return math.Sqrt(x*x + y*y)
}

// Round1 rounds f to one decimal place
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
