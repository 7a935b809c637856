package tracking

import "github.com/OpenTransitTools/fleetcast/foundation/geo"

//RouteStopTracker works out which intermediate stops are still ahead of a vehicle.
//It assumes distance from the origin increases monotonically along the route, which holds for roughly linear
//roads between cities but not for loops or branches
type RouteStopTracker struct {
	passedRatio float64
}

// MakeRouteStopTracker builds RouteStopTracker from tuning
func MakeRouteStopTracker(tuning Tuning) RouteStopTracker {
	return RouteStopTracker{passedRatio: tuning.StopPassedRatio}
}

//Remaining returns the stops, in their original order, that are still ahead of current.
//A stop is ahead when its distance from origin exceeds passedRatio times the vehicle's distance from origin, the
//tolerance keeps a stop the vehicle is passing right now from being dropped because of GPS noise.
//stops without a location are skipped
func (r RouteStopTracker) Remaining(current geo.Point, origin geo.Point, stops []Place) []Place {
	vehicleDistance := geo.DistanceKm(origin, current)
	threshold := r.passedRatio * vehicleDistance
	remaining := make([]Place, 0, len(stops))
	for _, stop := range stops {
		if stop.Location == nil {
			continue
		}
		if geo.DistanceKm(origin, *stop.Location) > threshold {
			remaining = append(remaining, stop)
		}
	}
	return remaining
}
