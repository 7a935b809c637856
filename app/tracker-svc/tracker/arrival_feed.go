package tracker

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// arrivalWrapper holds the latest PositionUpdate of a trip and the gtfs.TripUpdate that was built from it
type arrivalWrapper struct {
	update           *PositionUpdate
	tripUpdateProtoc *gtfs.TripUpdate
}

//makeArrivalWrapper builds arrivalWrapper from PositionUpdate. The trip's destination is the only stop time update,
//with NO_DATA when its arrival couldn't be estimated
func makeArrivalWrapper(update *PositionUpdate) *arrivalWrapper {
	tripId := strconv.FormatInt(update.TripId, 10)
	timestamp := uint64(update.RecordedAt.Unix())
	tripScheduleRelationship := gtfs.TripDescriptor_SCHEDULED
	tripUpdateProtoc := gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:               &tripId,
			ScheduleRelationship: &tripScheduleRelationship,
		},
		Timestamp: &timestamp,
	}
	if update.VehicleId != nil {
		vehicleId := strconv.FormatInt(*update.VehicleId, 10)
		tripUpdateProtoc.Vehicle = &gtfs.VehicleDescriptor{
			Id: &vehicleId,
		}
	}

	stopId := update.Destination
	destinationUpdate := gtfs.TripUpdate_StopTimeUpdate{
		StopId: &stopId,
	}
	if update.EstimatedArrival == nil {
		noDataRelationship := gtfs.TripUpdate_StopTimeUpdate_NO_DATA
		destinationUpdate.ScheduleRelationship = &noDataRelationship
	} else {
		scheduledRelationship := gtfs.TripUpdate_StopTimeUpdate_SCHEDULED
		arrivalTime := update.EstimatedArrival.Unix()
		arrivalDelay := int32(update.EstimatedArrival.Sub(update.ScheduledArrival).Seconds())
		destinationUpdate.ScheduleRelationship = &scheduledRelationship
		destinationUpdate.Arrival = &gtfs.TripUpdate_StopTimeEvent{
			Time:  &arrivalTime,
			Delay: &arrivalDelay,
		}
	}
	tripUpdateProtoc.StopTimeUpdate = []*gtfs.TripUpdate_StopTimeUpdate{&destinationUpdate}

	return &arrivalWrapper{
		update:           update,
		tripUpdateProtoc: &tripUpdateProtoc,
	}
}

// arrivalCollection contains the current arrivalWrapper of each trip and provides thread safe access to them
type arrivalCollection struct {
	mu       sync.Mutex
	arrivals map[int64]*arrivalWrapper
}

func makeArrivalCollection() *arrivalCollection {
	return &arrivalCollection{
		arrivals: make(map[int64]*arrivalWrapper),
	}
}

//addUpdate stores update, discards it if arrivalCollection already holds a newer position for the same trip
func (c *arrivalCollection) addUpdate(update *PositionUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, present := c.arrivals[update.TripId]; present {
		if current.update.RecordedAt.After(update.RecordedAt) {
			return false
		}
	}
	c.arrivals[update.TripId] = makeArrivalWrapper(update)
	return true
}

//arrivalList returns all arrivalWrappers recorded within expireAfter of at, ordered by trip
func (c *arrivalCollection) arrivalList(at time.Time, expireAfter time.Duration) []*arrivalWrapper {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]*arrivalWrapper, 0, len(c.arrivals))
	for _, a := range c.arrivals {
		if at.Sub(a.update.RecordedAt) < expireAfter {
			results = append(results, a)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].update.TripId < results[j].update.TripId
	})
	return results
}

// expireUpdates removes all arrivalWrappers older than expireAfter.
// returns the number of arrivalWrappers that have been removed and how many are currently stored.
func (c *arrivalCollection) expireUpdates(at time.Time, expireAfter time.Duration) (removed int, currentSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previousSize := len(c.arrivals)
	for tripId, a := range c.arrivals {
		if at.Sub(a.update.RecordedAt) >= expireAfter {
			delete(c.arrivals, tripId)
		}
	}
	currentSize = len(c.arrivals)
	return previousSize - currentSize, currentSize
}

//arrivalFeedHandler serves the current arrival estimates of all tracked trips as GTFS-RT trip updates
type arrivalFeedHandler struct {
	log         *log.Logger
	arrivals    *arrivalCollection
	expireAfter time.Duration
	now         func() time.Time
}

func makeArrivalFeedHandler(log *log.Logger, arrivals *arrivalCollection, expireAfter time.Duration) *arrivalFeedHandler {
	return &arrivalFeedHandler{
		log:         log,
		arrivals:    arrivals,
		expireAfter: expireAfter,
		now:         time.Now,
	}
}

//ServeHTTP implements arrivalFeedHandler's http.Handler interface
func (a *arrivalFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	asText := strings.ToLower(r.FormValue("text")) == "true"
	asJson := strings.ToLower(r.FormValue("json")) == "true"
	now := a.now()
	current := a.arrivals.arrivalList(now, a.expireAfter)
	if asJson {
		a.serveJSON(w, now, current)
		return
	}
	feedMessage := buildFeedMessage(uint64(now.Unix()), current)
	if asText {
		a.writeProtocolBufferAsText(feedMessage, w)
	} else {
		a.writeProtocolBuffer(feedMessage, w)
	}
}

//writeProtocolBuffer marshal gtfs.FeedMessage as protocol buffer to http.ResponseWriter
func (a *arrivalFeedHandler) writeProtocolBuffer(feedMessage *gtfs.FeedMessage, w http.ResponseWriter) {
	bytes, err := proto.Marshal(feedMessage)
	if err != nil {
		a.log.Printf("Failed to marshal gtfs.FeedMessage to bytes, error:%s", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	if _, err = w.Write(bytes); err != nil {
		a.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
	}
}

//writeProtocolBufferAsText write plain text formatting of gtfs.FeedMessage to http.ResponseWriter
func (a *arrivalFeedHandler) writeProtocolBufferAsText(feedMessage *gtfs.FeedMessage, w http.ResponseWriter) {
	stringResponse := prototext.MarshalOptions{Multiline: true}.Format(feedMessage)
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(stringResponse)); err != nil {
		a.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
	}
}

//jsonArrivalResponseWrapper provides json response wrapper around PositionUpdates
type jsonArrivalResponseWrapper struct {
	Timestamp uint64            `json:"timestamp"`
	Arrivals  []*PositionUpdate `json:"arrivals"`
}

func (a *arrivalFeedHandler) serveJSON(w http.ResponseWriter, now time.Time, current []*arrivalWrapper) {
	wrapper := jsonArrivalResponseWrapper{
		Timestamp: uint64(now.Unix()),
		Arrivals:  make([]*PositionUpdate, 0, len(current)),
	}
	for _, arrival := range current {
		wrapper.Arrivals = append(wrapper.Arrivals, arrival.update)
	}
	jsonData, err := json.Marshal(wrapper)
	if err != nil {
		a.log.Printf("Error marshaling arrivals to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		a.log.Printf("Error writing json response: %s", err)
	}
}

//buildFeedMessage builds a full dataset gtfs.FeedMessage from arrivals
func buildFeedMessage(now uint64, arrivals []*arrivalWrapper) *gtfs.FeedMessage {
	gtfsRealtimeVersion := "2.0"
	incrementality := gtfs.FeedHeader_FULL_DATASET
	feedMessage := gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: &gtfsRealtimeVersion,
			Incrementality:      &incrementality,
			Timestamp:           &now,
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(arrivals)),
	}
	for _, arrival := range arrivals {
		feedMessage.Entity = append(feedMessage.Entity, &gtfs.FeedEntity{
			Id:         arrival.tripUpdateProtoc.Trip.TripId,
			TripUpdate: arrival.tripUpdateProtoc,
		})
	}
	return &feedMessage
}
