package tracking

import (
	"context"
	"log"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

//PositionStore is the storage the PositionIngestor records samples to and keeps mirrors up to date in
type PositionStore interface {
	RecordPositionSample(ctx context.Context, sample *fleet.PositionSample) error
	//RecentPositionSamples returns the latest limit samples ordered oldest first
	RecentPositionSamples(ctx context.Context, tripId int64, limit int) ([]*fleet.PositionSample, error)
	//UpdateTripPosition returns false when the trip already holds a newer position
	UpdateTripPosition(ctx context.Context, tripId int64, mirror fleet.PositionMirror) (bool, error)
	UpdateVehiclePosition(ctx context.Context, vehicleId int64, mirror fleet.PositionMirror) (bool, error)
}

// IngestResult describes what happened to an ingested position
type IngestResult struct {
	Sample *fleet.PositionSample `json:"sample"`
	//SpeedKmh is the estimated average speed, nil when it's unknown
	SpeedKmh *float64 `json:"speed_kmh"`
	//Estimate is nil when the destination couldn't be resolved
	Estimate       *Estimate `json:"estimate"`
	RemainingStops []Place   `json:"remaining_stops"`
	//MirrorUpdated is false when the trip already held a newer position or the mirror update failed
	MirrorUpdated bool  `json:"mirror_updated"`
	MirrorError   error `json:"-"`
}

// EstimatedArrival returns the estimated arrival, or nil if it couldn't be computed
func (r *IngestResult) EstimatedArrival() *time.Time {
	if r.Estimate == nil {
		return nil
	}
	arrival := r.Estimate.EstimatedArrival
	return &arrival
}

//PositionIngestor records position reports and keeps the latest position and arrival estimate of trips and
//vehicles current
type PositionIngestor struct {
	log            *log.Logger
	store          PositionStore
	historyWindow  int
	speedEstimator SpeedEstimator
	stopTracker    RouteStopTracker
	etaCalculator  ETACalculator
	now            func() time.Time
}

// MakePositionIngestor creates PositionIngestor
func MakePositionIngestor(log *log.Logger, store PositionStore, tuning Tuning) *PositionIngestor {
	return &PositionIngestor{
		log:            log,
		store:          store,
		historyWindow:  tuning.HistoryWindow,
		speedEstimator: MakeSpeedEstimator(tuning),
		stopTracker:    MakeRouteStopTracker(tuning),
		etaCalculator:  MakeETACalculator(tuning),
		now:            time.Now,
	}
}

//Ingest records report and then, best effort, estimates the trip's arrival along route and updates the trip and
//vehicle mirrors.
//only a failure to record the sample is returned, as a *PersistenceError, a sample must never be silently dropped.
//report is expected to have passed ValidateReport
func (p *PositionIngestor) Ingest(ctx context.Context, report PositionReport, route Route) (*IngestResult, error) {
	sample := report.sample()
	if err := p.store.RecordPositionSample(ctx, sample); err != nil {
		return nil, &PersistenceError{Op: "recording position sample", Err: err}
	}

	result := IngestResult{Sample: sample, RemainingStops: make([]Place, 0)}
	p.estimate(ctx, &result, route)

	mirror := fleet.PositionMirror{
		Latitude:         sample.Latitude,
		Longitude:        sample.Longitude,
		Speed:            mirrorSpeed(sample, result.SpeedKmh),
		RecordedAt:       sample.RecordedAt,
		EstimatedArrival: result.EstimatedArrival(),
	}

	updated, err := p.store.UpdateTripPosition(ctx, sample.TripId, mirror)
	if err != nil {
		p.log.Printf("failed to update position of trip %d, error: %v", sample.TripId, err)
		result.MirrorError = err
	} else if !updated {
		p.log.Printf("trip %d already has a position newer than %s", sample.TripId,
			sample.RecordedAt.Format(time.RFC3339))
	}
	result.MirrorUpdated = updated

	if sample.VehicleId != nil {
		_, err = p.store.UpdateVehiclePosition(ctx, *sample.VehicleId, mirror)
		if err != nil {
			p.log.Printf("failed to update position of vehicle %d, error: %v", *sample.VehicleId, err)
			if result.MirrorError == nil {
				result.MirrorError = err
			}
		}
	}
	return &result, nil
}

//estimate populates the speed, remaining stops and arrival Estimate of result.
//an unreadable history falls back to the default speed, an unresolved destination leaves Estimate nil
func (p *PositionIngestor) estimate(ctx context.Context, result *IngestResult, route Route) {
	sample := result.Sample
	current := samplePoint(sample)

	recent, err := p.store.RecentPositionSamples(ctx, sample.TripId, p.historyWindow)
	if err != nil {
		p.log.Printf("unable to read recent positions of trip %d, estimating without speed. error: %v",
			sample.TripId, err)
	} else if speed, known := p.speedEstimator.Estimate(recent); known {
		result.SpeedKmh = &speed
	}

	if route.Destination.Location == nil {
		return
	}

	// without an origin there's no way to tell which stops were passed, so estimate directly to the destination
	if route.Origin.Location != nil {
		result.RemainingStops = p.stopTracker.Remaining(current, *route.Origin.Location, route.ResolvedStops())
	}
	stopPoints := make([]geo.Point, 0, len(result.RemainingStops))
	for _, stop := range result.RemainingStops {
		stopPoints = append(stopPoints, *stop.Location)
	}

	estimate := p.etaCalculator.Calculate(current, *route.Destination.Location, result.SpeedKmh, stopPoints, p.now())
	result.Estimate = &estimate
}

// mirrorSpeed prefers the speed the device reported for the sample over the estimated average
func mirrorSpeed(sample *fleet.PositionSample, estimated *float64) *float64 {
	if sample.Speed != nil {
		return sample.Speed
	}
	return estimated
}
