package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/business/tracking"
	"github.com/gorilla/mux"
)

const maxPositionPayloadBytes = 64 * 1024

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//readinessHandler reports whether the service's storage can be reached
type readinessHandler struct {
	log         *log.Logger
	statusCheck func(ctx context.Context) error
}

func (h *readinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.statusCheck != nil {
		if err := h.statusCheck(r.Context()); err != nil {
			h.log.Printf("readiness check failed, error: %v", err)
			w.Header().Add("Application-Status", "UNAVAILABLE")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Add("Application-Status", "OK")
}

//errorResponse is the json body sent for failed requests
type errorResponse struct {
	Error string `json:"error"`
}

//tripHandler responds to position submissions and tracking requests for trips
type tripHandler struct {
	log     *log.Logger
	service *trackerService
}

func makeTripHandler(log *log.Logger, service *trackerService) *tripHandler {
	return &tripHandler{
		log:     log,
		service: service,
	}
}

//postPosition handles POST /trips/{tripId}/positions, the body is a json tracking.PositionReport whose trip id is
//taken from the path
func (t *tripHandler) postPosition(w http.ResponseWriter, r *http.Request) {
	tripId, ok := t.tripId(w, r)
	if !ok {
		return
	}
	var report tracking.PositionReport
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPositionPayloadBytes))
	if err := decoder.Decode(&report); err != nil {
		t.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed position payload: " + err.Error()})
		return
	}
	report.TripId = tripId

	update, err := t.service.ingestPosition(r.Context(), "http", report)
	if err != nil {
		t.writeError(w, err)
		return
	}
	t.writeJSON(w, http.StatusCreated, update)
}

//getTracking handles GET /trips/{tripId}/tracking. history=true adds the trail, optionally limited to samples
//recorded at or after since (RFC3339)
func (t *tripHandler) getTracking(w http.ResponseWriter, r *http.Request) {
	tripId, ok := t.tripId(w, r)
	if !ok {
		return
	}
	includeHistory := strings.ToLower(r.FormValue("history")) == "true"
	var since *time.Time
	if sinceValue := r.FormValue("since"); len(sinceValue) > 0 {
		parsed, err := time.Parse(time.RFC3339, sinceValue)
		if err != nil {
			t.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be an RFC3339 timestamp"})
			return
		}
		since = &parsed
	}

	snapshot, err := t.service.snapshot(r.Context(), tripId, includeHistory, since)
	if err != nil {
		t.writeError(w, err)
		return
	}
	t.writeJSON(w, http.StatusOK, snapshot)
}

func (t *tripHandler) tripId(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tripId, err := strconv.ParseInt(mux.Vars(r)["tripId"], 10, 64)
	if err != nil || tripId <= 0 {
		t.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid trip id"})
		return 0, false
	}
	return tripId, true
}

//writeError maps err to its http status
func (t *tripHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tracking.ErrInvalidReport):
		status = http.StatusBadRequest
	case errors.Is(err, fleet.ErrNotFound):
		status = http.StatusNotFound
	case tracking.IsPersistenceError(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		t.log.Printf("request failed, error: %v", err)
	}
	t.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (t *tripHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		t.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(jsonData); err != nil {
		t.log.Printf("Error writing json response: %s", err)
	}
}

//makeRouter creates the routes served by the tracker web service
func makeRouter(log *log.Logger,
	service *trackerService,
	hub *liveHub,
	arrivalFeed http.Handler,
	metrics *Collector,
	statusCheck func(ctx context.Context) error) *mux.Router {

	trips := makeTripHandler(log, service)

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/readiness", &readinessHandler{log: log, statusCheck: statusCheck})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/tripUpdates", arrivalFeed).Methods(http.MethodGet)
	r.HandleFunc("/trips/{tripId:[0-9]+}/positions", trips.postPosition).Methods(http.MethodPost)
	r.HandleFunc("/trips/{tripId:[0-9]+}/tracking", trips.getTracking).Methods(http.MethodGet)
	r.Handle("/trips/{tripId:[0-9]+}/live", hub).Methods(http.MethodGet)
	return r
}

//createServer creates configured http.Server for the tracker web service
func createServer(handler http.Handler, httpPort int) *http.Server {
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      handler,
	}
}

//runWebService starts up the tracker web service, and terminates on shutdown signal
func runWebService(log *log.Logger,
	wg *sync.WaitGroup,
	handler http.Handler,
	httpPort int,
	shutdownSignal chan bool) {
	defer wg.Done()
	srv := createServer(handler, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
