package tracking

import (
	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

//SpeedEstimator derives a smoothed speed in km/h from a window of recent position samples
type SpeedEstimator struct {
	minDeviceSpeedSamples int
	minElapsedSeconds     float64
	maxPlausibleSpeedKmh  float64
}

// MakeSpeedEstimator builds SpeedEstimator from tuning
func MakeSpeedEstimator(tuning Tuning) SpeedEstimator {
	return SpeedEstimator{
		minDeviceSpeedSamples: tuning.MinDeviceSpeedSamples,
		minElapsedSeconds:     tuning.MinElapsed.Seconds(),
		maxPlausibleSpeedKmh:  tuning.MaxPlausibleSpeedKmh,
	}
}

//Estimate returns the average speed in km/h across samples, which must be ordered oldest first.
//When enough samples carry a positive device reported speed their mean is used, since the device sees
//instantaneous motion and road curvature. Otherwise speed is derived from the great-circle displacement between
//the oldest and newest sample.
//returns false if the speed can't be known
func (s SpeedEstimator) Estimate(samples []*fleet.PositionSample) (float64, bool) {
	if speed, ok := s.deviceSpeed(samples); ok {
		return speed, true
	}
	return s.displacementSpeed(samples)
}

// deviceSpeed averages positive device reported speeds when there are at least minDeviceSpeedSamples of them
func (s SpeedEstimator) deviceSpeed(samples []*fleet.PositionSample) (float64, bool) {
	total := 0.0
	count := 0
	for _, sample := range samples {
		if sample.Speed != nil && *sample.Speed > 0 {
			total += *sample.Speed
			count++
		}
	}
	if count == 0 || count < s.minDeviceSpeedSamples {
		return 0, false
	}
	return geo.Round1(total / float64(count)), true
}

// displacementSpeed computes speed from the distance and time between the first and last samples
func (s SpeedEstimator) displacementSpeed(samples []*fleet.PositionSample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	oldest := samples[0]
	newest := samples[len(samples)-1]
	elapsedSeconds := newest.RecordedAt.Sub(oldest.RecordedAt).Seconds()
	if elapsedSeconds < s.minElapsedSeconds {
		return 0, false
	}
	distanceKm := geo.DistanceKm(samplePoint(oldest), samplePoint(newest))
	speed := distanceKm / (elapsedSeconds / 3600)
	if speed <= 0 || speed >= s.maxPlausibleSpeedKmh {
		return 0, false
	}
	return geo.Round1(speed), true
}

func samplePoint(sample *fleet.PositionSample) geo.Point {
	return geo.NewPoint(sample.Latitude, sample.Longitude)
}
