package tracker

import (
	"encoding/json"
	"log"
)

//natsPublisher is the part of *nats.Conn used to send updates
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

//resultsPublisher sends PositionUpdates to their destinations (NATS, live websocket clients and the arrival feed)
type resultsPublisher struct {
	log            *log.Logger
	natsConnection natsPublisher
	updateSubject  string
	hub            *liveHub
	arrivals       *arrivalCollection
	metrics        *Collector
}

//makeResultsPublisher creates resultsPublisher, updates are only sent over NATS when natsConnection is not nil
func makeResultsPublisher(log *log.Logger,
	natsConnection natsPublisher,
	updateSubject string,
	hub *liveHub,
	arrivals *arrivalCollection,
	metrics *Collector) *resultsPublisher {
	return &resultsPublisher{
		log:            log,
		natsConnection: natsConnection,
		updateSubject:  updateSubject,
		hub:            hub,
		arrivals:       arrivals,
		metrics:        metrics,
	}
}

func (p *resultsPublisher) publish(update *PositionUpdate) {
	if p.natsConnection != nil {
		p.sendOverNats(update)
	}
	p.hub.broadcast(update)
	p.arrivals.addUpdate(update)
}

func (p *resultsPublisher) sendOverNats(update *PositionUpdate) {
	jsonData, err := json.Marshal(update)
	if err != nil {
		p.log.Printf("failed to marshal PositionUpdate in resultsPublisher.sendOverNats, error:%v", err)
		p.metrics.NATSPublishErrs.Inc()
		return
	}
	err = p.natsConnection.Publish(p.updateSubject, jsonData)
	if err != nil {
		p.log.Printf("failed to send PositionUpdate for trip %d in resultsPublisher.sendOverNats, error:%v",
			update.TripId, err)
		p.metrics.NATSPublishErrs.Inc()
		return
	}
	p.metrics.NATSPublished.Inc()
}
