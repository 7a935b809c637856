package tracker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/fleetcast/business/tracking"
	"github.com/OpenTransitTools/fleetcast/foundation/httpclient"
	"google.golang.org/protobuf/proto"
)

// metersPerSecondToKmh converts gtfs-rt speeds to the km/h positions are recorded in
const metersPerSecondToKmh = 3.6

//feedPosition is a vehicle position read from a GTFS-RT vehicle positions feed
type feedPosition struct {
	//VehicleKey identifies the vehicle in the feed, it's the vehicle id or the entity id when the vehicle has none
	VehicleKey string
	Report     tracking.PositionReport
}

//positionIsSame returns true when other reports the same trip at the same place and time
func (f *feedPosition) positionIsSame(other *feedPosition) bool {
	if other == nil {
		return false
	}
	return f.VehicleKey == other.VehicleKey &&
		f.Report.TripId == other.Report.TripId &&
		f.Report.Latitude == other.Report.Latitude &&
		f.Report.Longitude == other.Report.Longitude &&
		f.Report.RecordedAt.Equal(other.Report.RecordedAt)
}

func (f *feedPosition) String() string {
	return fmt.Sprintf("feedPosition{ vehicle:%s, TripId:%d, lat:%f, lon:%f, RecordedAt:%s }", f.VehicleKey,
		f.Report.TripId, f.Report.Latitude, f.Report.Longitude, f.Report.RecordedAt.Format(time.RFC3339))
}

/*
parseFeedPositions loads gtfs-realtime vehicle positions into feedPositions.
Vehicles without a position or without a numeric trip id can't be tracked and are skipped.
Any changes to the GTFS-realtime protocol or generated code can be handled here and not elsewhere in the program.
*/
func parseFeedPositions(log *log.Logger, data []byte, now time.Time) ([]feedPosition, error) {
	feedMessage := gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, &feedMessage); err != nil {
		return nil, fmt.Errorf("unable to unmarshal FeedMessage: %w", err)
	}
	feedTimestamp := now
	if feedMessage.Header != nil && feedMessage.Header.Timestamp != nil {
		feedTimestamp = time.Unix(int64(*feedMessage.Header.Timestamp), 0)
	}

	positions := make([]feedPosition, 0, len(feedMessage.Entity))
	for _, entity := range feedMessage.Entity {
		if entity == nil || entity.Vehicle == nil {
			continue
		}
		vehicle := entity.Vehicle
		if vehicle.Position == nil || vehicle.Trip == nil || vehicle.Trip.TripId == nil {
			continue
		}
		tripId, err := strconv.ParseInt(*vehicle.Trip.TripId, 10, 64)
		if err != nil {
			log.Printf("skipping vehicle entity %s with non numeric trip id %q", entity.GetId(),
				*vehicle.Trip.TripId)
			continue
		}

		position := vehicle.Position
		report := tracking.PositionReport{
			TripId:     tripId,
			Latitude:   float64(position.GetLatitude()),
			Longitude:  float64(position.GetLongitude()),
			RecordedAt: feedTimestamp,
		}
		if vehicle.Timestamp != nil {
			report.RecordedAt = time.Unix(int64(*vehicle.Timestamp), 0)
		}
		if position.Bearing != nil {
			heading := float64(*position.Bearing)
			report.Heading = &heading
		}
		if position.Speed != nil {
			speed := float64(*position.Speed) * metersPerSecondToKmh
			report.Speed = &speed
		}

		vehicleKey := entity.GetId()
		if vehicle.Vehicle != nil && vehicle.Vehicle.Id != nil {
			vehicleKey = *vehicle.Vehicle.Id
			if vehicleId, err := strconv.ParseInt(vehicleKey, 10, 64); err == nil {
				report.VehicleId = &vehicleId
			}
		}
		positions = append(positions, feedPosition{VehicleKey: vehicleKey, Report: report})
	}
	return positions, nil
}

//feedPoller ingests vehicle positions from a GTFS-RT feed, skipping vehicles whose position hasn't changed
type feedPoller struct {
	log       *log.Logger
	service   *trackerService
	client    *http.Client
	url       string
	lastFetch *httpclient.RemoteFileInfo
	lastSeen  map[string]feedPosition
}

func makeFeedPoller(log *log.Logger, service *trackerService, url string) *feedPoller {
	return &feedPoller{
		log:      log,
		service:  service,
		client:   &http.Client{Timeout: 20 * time.Second},
		url:      url,
		lastSeen: make(map[string]feedPosition),
	}
}

//run polls the feed every loopEverySeconds until shutdownSignal
func (f *feedPoller) run(wg *sync.WaitGroup, loopEverySeconds int, shutdownSignal chan bool) {
	defer wg.Done()

	loopDuration := time.Duration(loopEverySeconds) * time.Second
	sleep := time.Duration(0) //sleep for zero seconds the first time

	for {
		select {
		case <-shutdownSignal:
			f.log.Printf("Exiting feed poller on shutdown signal")
			return
		case <-time.After(sleep):
		}

		start := time.Now()
		ingested, err := f.poll(context.Background(), start)
		if err != nil {
			f.log.Printf("error attempting to get vehicle positions from %s. error:%v\n", f.url, err)
		} else if ingested > 0 {
			f.log.Printf("ingested %d vehicle positions from feed\n", ingested)
		}

		// attempt to run the loop every loopEverySeconds by subtracting the time it took to perform the work
		workTook := time.Since(start)
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}

//poll fetches the feed if it changed and ingests new positions, returns the number ingested
func (f *feedPoller) poll(ctx context.Context, now time.Time) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetched, err := httpclient.FetchIfModified(fetchCtx, f.client, f.url, f.lastFetch)
	if err != nil {
		return 0, err
	}
	f.lastFetch = &fetched.Info
	if !fetched.Modified {
		return 0, nil
	}
	positions, err := parseFeedPositions(f.log, fetched.Body, now)
	if err != nil {
		return 0, err
	}
	return f.ingest(ctx, positions), nil
}

//ingest records each position that differs from the last one seen for its vehicle
func (f *feedPoller) ingest(ctx context.Context, positions []feedPosition) int {
	ingested := 0
	for i := range positions {
		position := positions[i]
		if last, present := f.lastSeen[position.VehicleKey]; present && position.positionIsSame(&last) {
			continue
		}
		ingestCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
		_, err := f.service.ingestPosition(ingestCtx, "gtfs-rt", position.Report)
		cancel()
		if err != nil {
			f.log.Printf("unable to ingest %s, error: %v", position.String(), err)
			if tracking.IsPersistenceError(err) {
				// leave lastSeen alone so the position is retried on the next poll
				continue
			}
		} else {
			ingested++
		}
		f.lastSeen[position.VehicleKey] = position
	}
	return ingested
}
