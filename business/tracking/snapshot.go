package tracking

import (
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
)

// LatestPosition is the last known position of a trip as held on its mirror
type LatestPosition struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Snapshot is the tracking state of a trip as presented to riders and dispatchers
type Snapshot struct {
	TripId           int64           `json:"trip_id"`
	Status           TrackingStatus  `json:"status"`
	Position         *LatestPosition `json:"position"`
	EstimatedArrival *time.Time      `json:"estimated_arrival"`
	ScheduledArrival time.Time       `json:"scheduled_arrival"`
	Route            Route           `json:"route"`
	//Trail is only populated when history was requested
	Trail []TrailPoint `json:"trail,omitempty"`
}

//BuildSnapshot assembles the Snapshot of trip at now. history, ordered oldest first, is compacted into the trail
//when it's not nil
func BuildSnapshot(trip *fleet.Trip, route Route, history []*fleet.PositionSample, now time.Time, tuning Tuning) Snapshot {
	snapshot := Snapshot{
		TripId:           trip.Id,
		Status:           ClassifyTracking(trip.TrackingActive, trip.LastPositionAt, now, tuning.LiveThreshold),
		EstimatedArrival: trip.EstimatedArrival,
		ScheduledArrival: trip.ScheduledArrival(),
		Route:            route,
	}
	if trip.CurrentLatitude != nil && trip.CurrentLongitude != nil && trip.LastPositionAt != nil {
		snapshot.Position = &LatestPosition{
			Latitude:   *trip.CurrentLatitude,
			Longitude:  *trip.CurrentLongitude,
			Speed:      trip.CurrentSpeed,
			RecordedAt: *trip.LastPositionAt,
		}
	}
	if history != nil {
		snapshot.Trail = MakeTrailCompactor(tuning).Compact(history)
	}
	return snapshot
}
