package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/business/tracking"
)

//TripStore is the storage the tracker service reads trips and position history from, in addition to the
//storage positions are ingested into
type TripStore interface {
	tracking.PositionStore
	//Trip returns fleet.ErrNotFound when the trip doesn't exist
	Trip(ctx context.Context, tripId int64) (*fleet.Trip, error)
	//PositionSamples returns up to limit samples, oldest first, recorded at or after since when it's not nil
	PositionSamples(ctx context.Context, tripId int64, since *time.Time, limit int) ([]*fleet.PositionSample, error)
}

//updatePublisher sends the results of ingested positions to interested parties
type updatePublisher interface {
	publish(update *PositionUpdate)
}

//PositionUpdate is the outcome of an ingested position, returned to the caller that submitted it and published
//to live subscribers
type PositionUpdate struct {
	TripId           int64      `json:"trip_id"`
	VehicleId        *int64     `json:"vehicle_id,omitempty"`
	SampleId         string     `json:"sample_id"`
	Source           string     `json:"source"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Speed            *float64   `json:"speed"`
	RecordedAt       time.Time  `json:"recorded_at"`
	Destination      string     `json:"destination"`
	ScheduledArrival time.Time  `json:"scheduled_arrival"`
	EstimatedArrival *time.Time `json:"estimated_arrival"`
	RemainingKm      *float64   `json:"remaining_km"`
	RemainingMinutes *int       `json:"remaining_minutes"`
	RemainingStops   []string   `json:"remaining_stops"`
	MirrorUpdated    bool       `json:"mirror_updated"`
}

//makePositionUpdate creates PositionUpdate from the result of ingesting a position of trip
func makePositionUpdate(source string, trip *fleet.Trip, result *tracking.IngestResult) *PositionUpdate {
	sample := result.Sample
	update := PositionUpdate{
		TripId:           sample.TripId,
		VehicleId:        sample.VehicleId,
		SampleId:         sample.Id,
		Source:           source,
		Latitude:         sample.Latitude,
		Longitude:        sample.Longitude,
		Speed:            sample.Speed,
		RecordedAt:       sample.RecordedAt,
		Destination:      trip.Destination,
		ScheduledArrival: trip.ScheduledArrival(),
		EstimatedArrival: result.EstimatedArrival(),
		RemainingStops:   make([]string, 0, len(result.RemainingStops)),
		MirrorUpdated:    result.MirrorUpdated,
	}
	if update.Speed == nil {
		update.Speed = result.SpeedKmh
	}
	if result.Estimate != nil {
		remainingKm := result.Estimate.RemainingKm
		remainingMinutes := result.Estimate.RemainingMinutes
		update.RemainingKm = &remainingKm
		update.RemainingMinutes = &remainingMinutes
	}
	for _, stop := range result.RemainingStops {
		update.RemainingStops = append(update.RemainingStops, stop.Name)
	}
	return &update
}

//trackerService joins the trip store, coordinate lookup and PositionIngestor for all inbound surfaces
type trackerService struct {
	log       *log.Logger
	store     TripStore
	lookup    tracking.CoordinateLookup
	ingestor  *tracking.PositionIngestor
	tuning    tracking.Tuning
	publisher updatePublisher
	metrics   *Collector
	now       func() time.Time
}

//makeTrackerService creates trackerService
func makeTrackerService(log *log.Logger,
	store TripStore,
	lookup tracking.CoordinateLookup,
	tuning tracking.Tuning,
	publisher updatePublisher,
	metrics *Collector) *trackerService {
	return &trackerService{
		log:       log,
		store:     store,
		lookup:    lookup,
		ingestor:  tracking.MakePositionIngestor(log, store, tuning),
		tuning:    tuning,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

//ingestPosition validates report, records it against its trip and publishes the result.
//errors wrap tracking.ErrInvalidReport, fleet.ErrNotFound or are a *tracking.PersistenceError
func (s *trackerService) ingestPosition(ctx context.Context, source string, report tracking.PositionReport) (*PositionUpdate, error) {
	start := time.Now()

	if err := tracking.ValidateReport(&report, s.now(), s.tuning); err != nil {
		s.metrics.IngestFailures.WithLabelValues("invalid").Inc()
		return nil, err
	}

	trip, err := s.store.Trip(ctx, report.TripId)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			s.metrics.IngestFailures.WithLabelValues("unknown_trip").Inc()
			return nil, fmt.Errorf("trip %d: %w", report.TripId, err)
		}
		s.metrics.IngestFailures.WithLabelValues("persistence").Inc()
		return nil, &tracking.PersistenceError{Op: "loading trip", Err: err}
	}
	if report.VehicleId == nil {
		report.VehicleId = trip.VehicleId
	}

	route := tracking.ResolveRoute(ctx, s.log, s.lookup, trip.Origin, trip.Destination, trip.Stops)
	result, err := s.ingestor.Ingest(ctx, report, route)
	if err != nil {
		s.metrics.IngestFailures.WithLabelValues("persistence").Inc()
		return nil, err
	}
	s.recordMetrics(source, result, time.Since(start))

	update := makePositionUpdate(source, trip, result)
	s.publisher.publish(update)
	return update, nil
}

func (s *trackerService) recordMetrics(source string, result *tracking.IngestResult, took time.Duration) {
	s.metrics.PositionsIngested.WithLabelValues(source).Inc()
	s.metrics.IngestDuration.Observe(took.Seconds())
	if result.Estimate != nil {
		s.metrics.EstimatesComputed.Inc()
	} else {
		s.metrics.EstimatesUnavailable.Inc()
	}
	if result.MirrorError != nil {
		s.metrics.MirrorUpdateErrors.Inc()
	} else if !result.MirrorUpdated {
		s.metrics.MirrorUpdatesSkipped.Inc()
	}
}

//snapshot assembles the tracking.Snapshot of trip tripId. When includeHistory is true the latest
//tuning.TrailMaxPoints samples, optionally only those recorded at or after since, are compacted into its trail
func (s *trackerService) snapshot(ctx context.Context,
	tripId int64,
	includeHistory bool,
	since *time.Time) (*tracking.Snapshot, error) {

	trip, err := s.store.Trip(ctx, tripId)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, fmt.Errorf("trip %d: %w", tripId, err)
		}
		return nil, &tracking.PersistenceError{Op: "loading trip", Err: err}
	}

	var history []*fleet.PositionSample
	if includeHistory {
		history, err = s.store.PositionSamples(ctx, tripId, since, s.tuning.TrailMaxPoints)
		if err != nil {
			return nil, &tracking.PersistenceError{Op: "loading position history", Err: err}
		}
		if history == nil {
			history = make([]*fleet.PositionSample, 0)
		}
	}

	route := tracking.ResolveRoute(ctx, s.log, s.lookup, trip.Origin, trip.Destination, trip.Stops)
	snapshot := tracking.BuildSnapshot(trip, route, history, s.now(), s.tuning)
	return &snapshot, nil
}
