package tracker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//Collector holds the prometheus metrics reported by the tracker service
type Collector struct {
	reg *prometheus.Registry

	PositionsIngested *prometheus.CounterVec // source label: http|nats|mqtt|gtfs-rt
	IngestFailures    *prometheus.CounterVec // reason label: invalid|unknown_trip|persistence|other

	EstimatesComputed    prometheus.Counter
	EstimatesUnavailable prometheus.Counter
	MirrorUpdatesSkipped prometheus.Counter
	MirrorUpdateErrors   prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	LiveClients prometheus.Gauge

	IngestDuration prometheus.Histogram
}

//NewCollector creates Collector with all metrics registered on its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PositionsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_positions_ingested_total",
			Help: "Total position samples recorded.",
		}, []string{"source"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_ingest_failures_total",
			Help: "Total position reports that were not recorded.",
		}, []string{"reason"}),
		EstimatesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_estimates_computed_total",
			Help: "Total arrival estimates computed.",
		}),
		EstimatesUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_estimates_unavailable_total",
			Help: "Total ingested positions without an arrival estimate.",
		}),
		MirrorUpdatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_mirror_updates_skipped_total",
			Help: "Total trip position updates skipped because a newer position was already stored.",
		}),
		MirrorUpdateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_mirror_update_errors_total",
			Help: "Total failed trip or vehicle position updates.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total position updates published over NATS.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_live_clients",
			Help: "Number of connected live tracking websocket clients.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_ingest_duration_seconds",
			Help:    "Duration to record a position and update the trip.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.PositionsIngested, c.IngestFailures,
		c.EstimatesComputed, c.EstimatesUnavailable,
		c.MirrorUpdatesSkipped, c.MirrorUpdateErrors,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.LiveClients, c.IngestDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

//NATSSetConnected records the state of the NATS connection
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
