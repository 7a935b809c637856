package tracking

import (
	"math"
	"time"

	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

// Estimate is the remaining journey of a vehicle to its destination
type Estimate struct {
	//RemainingKm approximate road distance left, to one decimal
	RemainingKm      float64   `json:"remaining_km"`
	RemainingMinutes int       `json:"remaining_minutes"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	//SpeedUsedKmh is the speed the estimate was calculated with after defaults and floors were applied
	SpeedUsedKmh float64 `json:"speed_used_kmh"`
}

//ETACalculator estimates remaining distance and arrival time from straight line distances corrected by a winding
//factor
type ETACalculator struct {
	windingFactor   float64
	defaultSpeedKmh float64
	minSpeedKmh     float64
}

// MakeETACalculator builds ETACalculator from tuning
func MakeETACalculator(tuning Tuning) ETACalculator {
	return ETACalculator{
		windingFactor:   tuning.WindingFactor,
		defaultSpeedKmh: tuning.DefaultSpeedKmh,
		minSpeedKmh:     tuning.MinSpeedKmh,
	}
}

//Calculate produces an Estimate from current to destination at now.
//when remainingStops is not empty the distance is the sum of legs current -> stop 1 -> ... -> destination,
//otherwise the direct distance. averageSpeedKmh may be nil when the speed is unknown
func (c ETACalculator) Calculate(current geo.Point,
	destination geo.Point,
	averageSpeedKmh *float64,
	remainingStops []geo.Point,
	now time.Time) Estimate {

	var straightKm float64
	if len(remainingStops) > 0 {
		path := make([]geo.Point, 0, len(remainingStops)+2)
		path = append(path, current)
		path = append(path, remainingStops...)
		path = append(path, destination)
		straightKm = geo.PathDistanceKm(path...)
	} else {
		straightKm = geo.DistanceKm(current, destination)
	}
	roadKm := straightKm * c.windingFactor

	speed := c.effectiveSpeed(averageSpeedKmh)
	minutes := int(math.Round(roadKm / speed * 60))

	return Estimate{
		RemainingKm:      geo.Round1(roadKm),
		RemainingMinutes: minutes,
		EstimatedArrival: now.Add(time.Duration(minutes) * time.Minute),
		SpeedUsedKmh:     speed,
	}
}

// effectiveSpeed returns the supplied speed, or the default when nil, but never less than the floor
func (c ETACalculator) effectiveSpeed(averageSpeedKmh *float64) float64 {
	speed := c.defaultSpeedKmh
	if averageSpeedKmh != nil {
		speed = *averageSpeedKmh
	}
	return math.Max(speed, c.minSpeedKmh)
}
