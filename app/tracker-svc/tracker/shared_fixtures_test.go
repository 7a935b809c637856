package tracker

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/business/tracking"
	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

type testLogWriter struct {
	mu       sync.Mutex
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "TRACKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func float64Ptr(f float64) *float64 {
	return &f
}

func int64Ptr(i int64) *int64 {
	return &i
}

var errDatabaseDown = errors.New("database is down")

// fakeStore is an in memory TripStore
type fakeStore struct {
	mu         sync.Mutex
	trips      map[int64]*fleet.Trip
	samples    []*fleet.PositionSample
	vehicles   map[int64]fleet.PositionMirror
	failTrip   bool
	failRecord bool
}

func makeFakeStore(trips ...*fleet.Trip) *fakeStore {
	store := &fakeStore{
		trips:    make(map[int64]*fleet.Trip),
		vehicles: make(map[int64]fleet.PositionMirror),
	}
	for _, trip := range trips {
		store.trips[trip.Id] = trip
	}
	return store
}

func (f *fakeStore) Trip(_ context.Context, tripId int64) (*fleet.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTrip {
		return nil, errDatabaseDown
	}
	trip, present := f.trips[tripId]
	if !present {
		return nil, fleet.ErrNotFound
	}
	tripCopy := *trip
	return &tripCopy, nil
}

func (f *fakeStore) RecordPositionSample(_ context.Context, sample *fleet.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecord {
		return errDatabaseDown
	}
	if len(sample.Id) == 0 {
		sample.Id = "sample-" + time.Now().Format(time.RFC3339Nano)
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeStore) tripSamples(tripId int64) []*fleet.PositionSample {
	var results []*fleet.PositionSample
	for _, s := range f.samples {
		if s.TripId == tripId {
			results = append(results, s)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RecordedAt.Before(results[j].RecordedAt)
	})
	return results
}

func (f *fakeStore) RecentPositionSamples(_ context.Context, tripId int64, limit int) ([]*fleet.PositionSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := f.tripSamples(tripId)
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (f *fakeStore) PositionSamples(_ context.Context, tripId int64, since *time.Time, limit int) ([]*fleet.PositionSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []*fleet.PositionSample
	for _, s := range f.tripSamples(tripId) {
		if since == nil || !s.RecordedAt.Before(*since) {
			results = append(results, s)
		}
	}
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (f *fakeStore) UpdateTripPosition(_ context.Context, tripId int64, mirror fleet.PositionMirror) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trip, present := f.trips[tripId]
	if !present {
		return false, nil
	}
	if trip.LastPositionAt != nil && !trip.LastPositionAt.Before(mirror.RecordedAt) {
		return false, nil
	}
	latitude := mirror.Latitude
	longitude := mirror.Longitude
	recordedAt := mirror.RecordedAt
	trip.CurrentLatitude = &latitude
	trip.CurrentLongitude = &longitude
	trip.CurrentSpeed = mirror.Speed
	trip.LastPositionAt = &recordedAt
	trip.EstimatedArrival = mirror.EstimatedArrival
	trip.TrackingActive = true
	return true, nil
}

func (f *fakeStore) UpdateVehiclePosition(_ context.Context, vehicleId int64, mirror fleet.PositionMirror) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles[vehicleId] = mirror
	return true, nil
}

func (f *fakeStore) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

// fakePublisher collects published updates
type fakePublisher struct {
	mu      sync.Mutex
	updates []*PositionUpdate
}

func (f *fakePublisher) publish(update *PositionUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

// coordinateMap is a tracking.CoordinateLookup backed by a map
type coordinateMap map[string]geo.Point

func (c coordinateMap) LookupCoordinate(_ context.Context, name string) (geo.Point, bool, error) {
	p, found := c[name]
	return p, found, nil
}

var testCoordinates = coordinateMap{
	"Nairobi": geo.NewPoint(-1.2921, 36.8219),
	"Nakuru":  geo.NewPoint(-0.3031, 36.0800),
	"Kisumu":  geo.NewPoint(-0.0917, 34.7680),
}

// testTrip is a trip from Nairobi to Kisumu through Nakuru that has not received a position
func testTrip(id int64) *fleet.Trip {
	return &fleet.Trip{
		Id:                       id,
		Origin:                   "Nairobi",
		Destination:              "Kisumu",
		Stops:                    `["Nakuru"]`,
		DepartureTime:            time.Now().Add(-time.Hour),
		EstimatedDurationMinutes: 360,
		VehicleId:                int64Ptr(40),
	}
}

// makeTestService creates trackerService over store, publishing to a fakePublisher
func makeTestService(store TripStore) (*trackerService, *fakePublisher, *testLogWriter) {
	logWriter := makeTestLogWriter()
	publisher := &fakePublisher{}
	service := makeTrackerService(logWriter.log, store, testCoordinates, tracking.DefaultTuning(), publisher,
		NewCollector())
	return service, publisher, logWriter
}
