// Package tracking turns noisy GPS samples from buses in transit into speed estimates, arrival time estimates,
// tracking freshness and renderable trails
package tracking

import (
	"fmt"
	"time"
)

//Tuning holds the adjustable parameters used by the tracking components. Values are approximations that depend
//on the road network of a deployment so they're configurable rather than constants
type Tuning struct {
	//WindingFactor multiplies straight line distance to approximate road distance
	WindingFactor float64
	//DefaultSpeedKmh is used when no average speed can be estimated
	DefaultSpeedKmh float64
	//MinSpeedKmh floors the speed used for arrival estimates so a stopped bus doesn't produce a runaway ETA
	MinSpeedKmh float64
	//MaxPlausibleSpeedKmh displacement speeds at or above this are treated as GPS jitter
	MaxPlausibleSpeedKmh float64
	//MinElapsed is the shortest time between the oldest and newest sample a displacement speed is computed over
	MinElapsed time.Duration
	//MinDeviceSpeedSamples is the number of samples with a device reported speed required to trust device speeds
	MinDeviceSpeedSamples int
	//HistoryWindow is the number of recent samples used to estimate speed
	HistoryWindow int
	//StopPassedRatio a stop is still ahead if its distance from the origin is greater than
	//StopPassedRatio * the vehicle's distance from the origin
	StopPassedRatio float64
	//LiveThreshold is how old the last position can be while tracking is still considered live
	LiveThreshold time.Duration
	//TrailMinMeters is the north-south or east-west movement required before another trail point is kept
	TrailMinMeters float64
	//TrailMaxPoints limits how many history samples are read to build a trail
	TrailMaxPoints int
	//MaxSampleAge samples recorded longer ago than this are rejected
	MaxSampleAge time.Duration
	//MaxClockSkew samples recorded further than this in the future are rejected
	MaxClockSkew time.Duration
}

// DefaultTuning returns the Tuning tracking was calibrated with
func DefaultTuning() Tuning {
	return Tuning{
		WindingFactor:         1.3,
		DefaultSpeedKmh:       60,
		MinSpeedKmh:           20,
		MaxPlausibleSpeedKmh:  200,
		MinElapsed:            4 * time.Second,
		MinDeviceSpeedSamples: 3,
		HistoryWindow:         10,
		StopPassedRatio:       0.9,
		LiveThreshold:         120 * time.Second,
		TrailMinMeters:        55,
		TrailMaxPoints:        200,
		MaxSampleAge:          24 * time.Hour,
		MaxClockSkew:          2 * time.Minute,
	}
}

// Validate returns an error describing the first unusable value in Tuning
func (t Tuning) Validate() error {
	switch {
	case t.WindingFactor < 1:
		return fmt.Errorf("winding factor must be at least 1, got %f", t.WindingFactor)
	case t.MinSpeedKmh <= 0:
		return fmt.Errorf("minimum speed must be positive, got %f", t.MinSpeedKmh)
	case t.DefaultSpeedKmh <= 0:
		return fmt.Errorf("default speed must be positive, got %f", t.DefaultSpeedKmh)
	case t.MaxPlausibleSpeedKmh <= t.MinSpeedKmh:
		return fmt.Errorf("maximum plausible speed %f must be above minimum speed %f",
			t.MaxPlausibleSpeedKmh, t.MinSpeedKmh)
	case t.MinElapsed <= 0:
		return fmt.Errorf("minimum elapsed time must be positive, got %s", t.MinElapsed)
	case t.MinDeviceSpeedSamples < 1:
		return fmt.Errorf("minimum device speed samples must be at least 1, got %d", t.MinDeviceSpeedSamples)
	case t.HistoryWindow < 2:
		return fmt.Errorf("history window must be at least 2, got %d", t.HistoryWindow)
	case t.StopPassedRatio <= 0 || t.StopPassedRatio > 1:
		return fmt.Errorf("stop passed ratio must be in (0,1], got %f", t.StopPassedRatio)
	case t.LiveThreshold <= 0:
		return fmt.Errorf("live threshold must be positive, got %s", t.LiveThreshold)
	case t.TrailMinMeters < 0:
		return fmt.Errorf("trail minimum meters can't be negative, got %f", t.TrailMinMeters)
	case t.TrailMaxPoints < 2:
		return fmt.Errorf("trail max points must be at least 2, got %d", t.TrailMaxPoints)
	case t.MaxSampleAge <= 0:
		return fmt.Errorf("max sample age must be positive, got %s", t.MaxSampleAge)
	case t.MaxClockSkew < 0:
		return fmt.Errorf("max clock skew can't be negative, got %s", t.MaxClockSkew)
	}
	return nil
}
