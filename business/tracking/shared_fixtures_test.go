package tracking

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/foundation/geo"
)

type testLogWriter struct {
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
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func float64Ptr(f float64) *float64 {
	return &f
}

func int64Ptr(i int64) *int64 {
	return &i
}

func pointPtr(lat, lon float64) *geo.Point {
	p := geo.NewPoint(lat, lon)
	return &p
}

// kmNorth returns the latitude delta in degrees that is km along a meridian
func kmNorth(km float64) float64 {
	return km / geo.EarthRadiusKm * 180 / 3.141592653589793
}

func makeSample(lat, lon float64, speed *float64, at time.Time) *fleet.PositionSample {
	return &fleet.PositionSample{
		TripId:     1,
		Latitude:   lat,
		Longitude:  lon,
		Speed:      speed,
		RecordedAt: at,
	}
}

var errStoreDown = errors.New("store is down")

// memStore is an in memory PositionStore with the same conditional mirror semantics as the database
type memStore struct {
	mu              sync.Mutex
	samples         []*fleet.PositionSample
	trips           map[int64]fleet.PositionMirror
	vehicles        map[int64]fleet.PositionMirror
	failRecord      bool
	failRecent      bool
	failTripUpdate  bool
	vehicleUpdates  int
	tripUpdateCalls int
}

func makeMemStore() *memStore {
	return &memStore{
		trips:    make(map[int64]fleet.PositionMirror),
		vehicles: make(map[int64]fleet.PositionMirror),
	}
}

func (m *memStore) RecordPositionSample(_ context.Context, sample *fleet.PositionSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord {
		return errStoreDown
	}
	m.samples = append(m.samples, sample)
	return nil
}

func (m *memStore) RecentPositionSamples(_ context.Context, tripId int64, limit int) ([]*fleet.PositionSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecent {
		return nil, errStoreDown
	}
	var results []*fleet.PositionSample
	for _, s := range m.samples {
		if s.TripId == tripId {
			results = append(results, s)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RecordedAt.Before(results[j].RecordedAt)
	})
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *memStore) UpdateTripPosition(_ context.Context, tripId int64, mirror fleet.PositionMirror) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripUpdateCalls++
	if m.failTripUpdate {
		return false, errStoreDown
	}
	if existing, present := m.trips[tripId]; present && !existing.RecordedAt.Before(mirror.RecordedAt) {
		return false, nil
	}
	m.trips[tripId] = mirror
	return true, nil
}

func (m *memStore) UpdateVehiclePosition(_ context.Context, vehicleId int64, mirror fleet.PositionMirror) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicleUpdates++
	if existing, present := m.vehicles[vehicleId]; present && !existing.RecordedAt.Before(mirror.RecordedAt) {
		return false, nil
	}
	m.vehicles[vehicleId] = mirror
	return true, nil
}

// mapLookup is a CoordinateLookup backed by a map
type mapLookup struct {
	points map[string]geo.Point
	err    error
}

func (m mapLookup) LookupCoordinate(_ context.Context, name string) (geo.Point, bool, error) {
	if m.err != nil {
		return geo.Point{}, false, m.err
	}
	p, found := m.points[name]
	return p, found, nil
}
