package tracker

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetcast/business/tracking"
	"github.com/nats-io/nats.go"
)

const (
	positionQueueGroup = "position-ingestors"
	ingestTimeout      = 10 * time.Second
)

//runPositionListener starts a NATS queue subscription on positionSubject for json tracking.PositionReport
//messages and ingests them. Ends NATS subscription and returns on shutdownSignal
func runPositionListener(
	log *log.Logger,
	wg *sync.WaitGroup,
	natsConn *nats.Conn,
	service *trackerService,
	positionSubject string,
	shutdownSignal chan bool) {
	defer wg.Done()

	ch := make(chan *nats.Msg, 64)
	log.Printf("Subscribing to positions on subject:%s queue:%s on nats: %v\n", positionSubject,
		positionQueueGroup, natsConn.Servers())
	sub, err := natsConn.ChanQueueSubscribe(positionSubject, positionQueueGroup, ch)
	if err != nil {
		log.Printf("Unable to establish subscription to nats server: %v\n", err)
		<-shutdownSignal
		return
	}

	for {
		select {
		case msg := <-ch:
			processPositionFromMsg(log, service, msg)
		case <-shutdownSignal:
			log.Printf("ending position listener on shutdown signal\n")
			log.Printf("unsubscribing to nats\n")
			err = sub.Unsubscribe()
			if err != nil {
				log.Printf("Error unsubscribing to nats:%s", err)
			}
			return
		}
	}
}

//processPositionFromMsg un-marshal tracking.PositionReport from nats.Msg and ingest it.
//when the message has a reply subject the PositionUpdate or error is sent back
func processPositionFromMsg(log *log.Logger, service *trackerService, msg *nats.Msg) bool {
	var report tracking.PositionReport
	err := json.Unmarshal(msg.Data, &report)
	if err != nil {
		log.Printf("error parsing PositionReport: %s, payload:%s", err, string(msg.Data))
		respondToMsg(log, msg, errorResponse{Error: err.Error()})
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	update, err := service.ingestPosition(ctx, "nats", report)
	if err != nil {
		log.Printf("unable to ingest position for trip %d from nats, error: %v", report.TripId, err)
		respondToMsg(log, msg, errorResponse{Error: err.Error()})
		return false
	}
	respondToMsg(log, msg, update)
	return true
}

func respondToMsg(log *log.Logger, msg *nats.Msg, body interface{}) {
	if len(msg.Reply) == 0 {
		return
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		log.Printf("failed to marshal nats reply, error:%v", err)
		return
	}
	if err = msg.Respond(jsonData); err != nil {
		log.Printf("failed to respond to nats message on %s, error:%v", msg.Subject, err)
	}
}
