package tracking

import (
	"math"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

// TrailPoint is a position rendered on a trip's trail
type TrailPoint struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

//TrailCompactor drops trail points that barely moved so a trip's history is cheap to draw
type TrailCompactor struct {
	minMeters float64
}

// MakeTrailCompactor builds TrailCompactor from tuning
func MakeTrailCompactor(tuning Tuning) TrailCompactor {
	return TrailCompactor{minMeters: tuning.TrailMinMeters}
}

//Compact reduces samples, ordered oldest first, to a trail.
//The first sample is kept, after that a sample is kept only when it moved more than minMeters north-south or
//east-west from the last kept sample. The final sample is always kept so the current position is never dropped
func (c TrailCompactor) Compact(samples []*fleet.PositionSample) []TrailPoint {
	trail := make([]TrailPoint, 0)
	if len(samples) == 0 {
		return trail
	}
	lastKept := samples[0]
	trail = append(trail, makeTrailPoint(lastKept))
	for i := 1; i < len(samples); i++ {
		sample := samples[i]
		isLast := i == len(samples)-1
		if isLast || c.movedEnough(lastKept, sample) {
			trail = append(trail, makeTrailPoint(sample))
			lastKept = sample
		}
	}
	return trail
}

// movedEnough returns true when to is more than minMeters from from along either axis
func (c TrailCompactor) movedEnough(from *fleet.PositionSample, to *fleet.PositionSample) bool {
	eastWest, northSouth := geo.LocalOffsetMeters(samplePoint(from), samplePoint(to))
	return math.Abs(eastWest) > c.minMeters || math.Abs(northSouth) > c.minMeters
}

func makeTrailPoint(sample *fleet.PositionSample) TrailPoint {
	return TrailPoint{
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Speed:      sample.Speed,
		RecordedAt: sample.RecordedAt,
	}
}
