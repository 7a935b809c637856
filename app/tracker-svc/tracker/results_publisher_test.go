package tracker

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

type fakeNats struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeNats) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func testUpdate(tripId int64) *PositionUpdate {
	return &PositionUpdate{
		TripId:         tripId,
		SampleId:       "s1",
		Source:         "http",
		Latitude:       -0.9,
		Longitude:      36.5,
		RecordedAt:     time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		RemainingStops: []string{"Nakuru"},
		MirrorUpdated:  true,
	}
}

func TestResultsPublisher_publish(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	conn := &fakeNats{}
	publisher := makeResultsPublisher(logWriter.log, conn, "trip-position-updates", makeLiveHub(logWriter.log),
		makeArrivalCollection(), NewCollector())

	publisher.publish(testUpdate(3))
	is.Equal(conn.subjects, []string{"trip-position-updates"})
	var sent PositionUpdate
	is.NoErr(json.Unmarshal(conn.payloads[0], &sent))
	is.Equal(sent.TripId, int64(3))
	is.Equal(sent.RemainingStops, []string{"Nakuru"})
	is.Equal(len(logWriter.logLines), 0)
}

func TestResultsPublisher_publishError(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	conn := &fakeNats{err: errors.New("nats: connection closed")}
	metrics := NewCollector()
	publisher := makeResultsPublisher(logWriter.log, conn, "trip-position-updates", makeLiveHub(logWriter.log),
		makeArrivalCollection(), metrics)

	publisher.publish(testUpdate(3))
	is.Equal(len(logWriter.logLines), 1)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	is.True(strings.Contains(rec.Body.String(), "tracker_nats_publish_errors_total 1"))
}

func TestResultsPublisher_withoutNats(t *testing.T) {
	logWriter := makeTestLogWriter()
	publisher := makeResultsPublisher(logWriter.log, nil, "trip-position-updates", makeLiveHub(logWriter.log),
		makeArrivalCollection(), NewCollector())
	publisher.publish(testUpdate(3))
	if len(logWriter.logLines) != 0 {
		t.Errorf("unexpected log lines %v", logWriter.logLines)
	}
}

// waitForClients waits until hub has count clients or fails the test
func waitForClients(t *testing.T, hub *liveHub, count int) {
	deadline := time.Now().Add(5 * time.Second)
	for hub.clientCount() != count {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, wanted %d", hub.clientCount(), count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveHub(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	hub := makeLiveHub(logWriter.log)
	r := mux.NewRouter()
	r.Handle("/trips/{tripId:[0-9]+}/live", hub)
	server := httptest.NewServer(r)
	defer server.Close()

	wsUrl := "ws" + strings.TrimPrefix(server.URL, "http")
	following, _, err := websocket.DefaultDialer.Dial(wsUrl+"/trips/3/live", nil)
	is.NoErr(err)
	defer following.Close()
	other, _, err := websocket.DefaultDialer.Dial(wsUrl+"/trips/4/live", nil)
	is.NoErr(err)
	defer other.Close()
	waitForClients(t, hub, 2)

	hub.broadcast(testUpdate(3))

	is.NoErr(following.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, data, err := following.ReadMessage()
	is.NoErr(err)
	var received PositionUpdate
	is.NoErr(json.Unmarshal(data, &received))
	is.Equal(received.TripId, int64(3))

	// the client following another trip receives nothing
	is.NoErr(other.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err = other.ReadMessage()
	is.True(err != nil)

	is.NoErr(following.Close())
	waitForClients(t, hub, 1)

	hub.closeAll()
	is.Equal(hub.clientCount(), 0)
}
