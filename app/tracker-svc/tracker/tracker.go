// Package tracker runs the tracker service: it accepts bus positions over http, NATS, MQTT and GTFS-RT, ingests
// them and serves live tracking to riders
package tracker

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/tracking"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
)

//Config holds the settings StartServices needs to bring up the tracker's services
type Config struct {
	HttpPort int
	//PositionSubject NATS subject position reports are received on
	PositionSubject string
	//UpdateSubject NATS subject PositionUpdates are published on
	UpdateSubject string
	//DeviceTopic MQTT topic filter device positions are received on
	DeviceTopic string
	//FeedUrl GTFS-RT vehicle positions feed, not polled when empty
	FeedUrl              string
	FeedLoadEverySeconds int
	//ExpireArrivalsAfter how long a trip's estimate remains in the GTFS-RT arrival feed without a new position
	ExpireArrivalsAfter time.Duration
	Tuning              tracking.Tuning
	//StatusCheck reports whether the database can be reached
	StatusCheck func(ctx context.Context) error
}

//StartServices brings up the web service, NATS position listener, MQTT device subscriber, feed poller and
//background loop. natsConn and mqttClient may be nil, in which case their services aren't started.
//Returns on shutdown signal once all services have stopped
func StartServices(log *log.Logger,
	cfg Config,
	store TripStore,
	lookup tracking.CoordinateLookup,
	metrics *Collector,
	natsConn *nats.Conn,
	mqttClient mqtt.Client,
	shutdownSignal chan os.Signal) {

	wg := sync.WaitGroup{}

	hub := makeLiveHub(log)
	var publisherConn natsPublisher
	if natsConn != nil {
		publisherConn = natsConn
	}
	arrivals := makeArrivalCollection()
	publisher := makeResultsPublisher(log, publisherConn, cfg.UpdateSubject, hub, arrivals, metrics)
	service := makeTrackerService(log, store, lookup, cfg.Tuning, publisher, metrics)

	//create shutdown channels
	var shutdownChannels []chan bool
	makeShutdown := func() chan bool {
		shutdown := make(chan bool, 1)
		shutdownChannels = append(shutdownChannels, shutdown)
		wg.Add(1)
		return shutdown
	}

	//start all child services
	go runBackgroundLoop(log, &wg, hub, arrivals, cfg.ExpireArrivalsAfter, metrics, makeShutdown())
	arrivalFeed := makeArrivalFeedHandler(log, arrivals, cfg.ExpireArrivalsAfter)
	router := makeRouter(log, service, hub, arrivalFeed, metrics, cfg.StatusCheck)
	go runWebService(log, &wg, router, cfg.HttpPort, makeShutdown())
	if natsConn != nil {
		go runPositionListener(log, &wg, natsConn, service, cfg.PositionSubject, makeShutdown())
	}
	if mqttClient != nil {
		subscriber := makeDeviceSubscriber(log, mqttClient, service, cfg.DeviceTopic)
		go subscriber.run(&wg, makeShutdown())
	}
	if len(cfg.FeedUrl) > 0 {
		poller := makeFeedPoller(log, service, cfg.FeedUrl)
		go poller.run(&wg, cfg.FeedLoadEverySeconds, makeShutdown())
	}

	<-shutdownSignal
	log.Printf("Exiting on shutdown signal, shutting down subroutines")
	for _, shutdown := range shutdownChannels {
		shutdown <- true
	}
	hub.closeAll()
	wg.Wait()
	log.Printf("Subroutines shut down, exiting tracker service")
}

//runBackgroundLoop periodically reports the number of live tracking clients and expires old arrival estimates
func runBackgroundLoop(log *log.Logger,
	wg *sync.WaitGroup,
	hub *liveHub,
	arrivals *arrivalCollection,
	expireArrivalsAfter time.Duration,
	metrics *Collector,
	shutdownSignal chan bool) {
	defer wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownSignal:
			log.Printf("Exiting background loop on shutdown signal")
			return
		case <-ticker.C:
		}
		clients := hub.clientCount()
		metrics.LiveClients.Set(float64(clients))
		log.Printf("Live tracking has %d connected clients", clients)
		removed, remaining := arrivals.expireUpdates(time.Now(), expireArrivalsAfter)
		if removed > 0 {
			log.Printf("Expired %d arrival estimates, %d remain", removed, remaining)
		}
	}
}
