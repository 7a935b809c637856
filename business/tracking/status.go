package tracking

import "time"

// TrackingStatus describes how fresh the tracking of a trip is. It's evaluated when read and never stored
type TrackingStatus string

const (
	// Off tracking has not started or the trip has been completed
	Off TrackingStatus = "off"
	// Live a position has been received within the live threshold
	Live TrackingStatus = "live"
	// Stale tracking is active but positions have stopped arriving
	Stale TrackingStatus = "stale"
)

//ClassifyTracking returns the TrackingStatus of a trip at now.
//an active trip that has never received a position is Stale
func ClassifyTracking(trackingActive bool, lastPositionAt *time.Time, now time.Time, liveThreshold time.Duration) TrackingStatus {
	if !trackingActive {
		return Off
	}
	if lastPositionAt == nil {
		return Stale
	}
	if now.Sub(*lastPositionAt) <= liveThreshold {
		return Live
	}
	return Stale
}
