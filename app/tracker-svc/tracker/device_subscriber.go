package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/OpenTransitTools/fleetcast/business/tracking"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	deviceQos              = 1
	disconnectQuiesceMilli = 250
)

//deviceSubscriber ingests positions published by on-board devices over MQTT.
//topics follow fleet/trips/{tripId}/position, the payload is a json tracking.PositionReport
type deviceSubscriber struct {
	log     *log.Logger
	client  mqtt.Client
	service *trackerService
	topic   string
}

func makeDeviceSubscriber(log *log.Logger, client mqtt.Client, service *trackerService, topic string) *deviceSubscriber {
	return &deviceSubscriber{
		log:     log,
		client:  client,
		service: service,
		topic:   topic,
	}
}

//run subscribes to the device topic and waits for shutdownSignal, then unsubscribes and disconnects
func (d *deviceSubscriber) run(wg *sync.WaitGroup, shutdownSignal chan bool) {
	defer wg.Done()

	d.log.Printf("Subscribing to device positions on mqtt topic:%s", d.topic)
	token := d.client.Subscribe(d.topic, deviceQos, d.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		d.log.Printf("Unable to subscribe to mqtt topic %s: %v", d.topic, err)
	}

	<-shutdownSignal
	d.log.Printf("ending device subscriber on shutdown signal")
	token = d.client.Unsubscribe(d.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		d.log.Printf("Error unsubscribing from mqtt:%s", err)
	}
	d.client.Disconnect(disconnectQuiesceMilli)
}

func (d *deviceSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	d.processMessage(msg.Topic(), msg.Payload())
}

//processMessage ingests a single device payload, returns true if it was recorded
func (d *deviceSubscriber) processMessage(topic string, payload []byte) bool {
	tripId, err := tripIdFromTopic(topic)
	if err != nil {
		d.log.Printf("ignoring device message, error: %v", err)
		return false
	}
	var report tracking.PositionReport
	if err = json.Unmarshal(payload, &report); err != nil {
		d.log.Printf("invalid device position for trip %d: %v, payload:%s", tripId, err, string(payload))
		return false
	}
	report.TripId = tripId

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	if _, err = d.service.ingestPosition(ctx, "mqtt", report); err != nil {
		d.log.Printf("unable to ingest device position for trip %d, error: %v", tripId, err)
		return false
	}
	return true
}

//tripIdFromTopic extracts the trip id from a fleet/trips/{tripId}/position topic
func tripIdFromTopic(topic string) (int64, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "fleet" || parts[1] != "trips" || parts[3] != "position" {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	tripId, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || tripId <= 0 {
		return 0, fmt.Errorf("invalid trip id in topic %q", topic)
	}
	return tripId, nil
}

//ConnectMQTT connects to broker, reconnecting automatically after a lost connection
func ConnectMQTT(broker string, clientId string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientId).
		SetAutoReconnect(true).
		SetCleanSession(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
