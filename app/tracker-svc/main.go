package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitTools/fleetcast/app/tracker-svc/tracker"
	"github.com/OpenTransitTools/fleetcast/business/data/fleet"
	"github.com/OpenTransitTools/fleetcast/business/tracking"
	"github.com/OpenTransitTools/fleetcast/foundation/database"
	"github.com/ardanlabs/conf"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "TRACKER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,noprint"`
			Host         string `conf:"default:0.0.0.0"`
			Name         string `conf:"default:postgres"`
			DisableTLS   bool   `conf:"default:true"`
			MaxOpenConns int    `conf:"default:10"`
			MaxIdleConns int    `conf:"default:5"`
		}
		Web struct {
			Port int `conf:"default:8080"`
		}
		Nats struct {
			Url             string `conf:"default:nats://localhost:4222"`
			PositionSubject string `conf:"default:trip-positions"`
			UpdateSubject   string `conf:"default:trip-position-updates"`
		}
		Mqtt struct {
			//Broker device positions are received from, the subscriber isn't started when empty
			Broker   string
			ClientID string `conf:"default:fleetcast-tracker"`
			Topic    string `conf:"default:fleet/trips/+/position"`
		}
		Feed struct {
			//Url GTFS-RT vehicle positions feed, not polled when empty
			Url              string
			LoadEverySeconds int `conf:"default:15"`
		}
		Arrivals struct {
			//ExpireSeconds how long a trip remains in /tripUpdates without a new position
			ExpireSeconds int `conf:"default:900"`
		}
		Coordinates struct {
			//File yaml coordinate book consulted before the city_coordinate table
			File string
		}
		Tracking struct {
			WindingFactor         float64       `conf:"default:1.3"`
			DefaultSpeedKmh       float64       `conf:"default:60"`
			MinSpeedKmh           float64       `conf:"default:20"`
			MaxPlausibleSpeedKmh  float64       `conf:"default:200"`
			MinElapsed            time.Duration `conf:"default:4s"`
			MinDeviceSpeedSamples int           `conf:"default:3"`
			HistoryWindow         int           `conf:"default:10"`
			StopPassedRatio       float64       `conf:"default:0.9"`
			LiveThreshold         time.Duration `conf:"default:120s"`
			TrailMinMeters        float64       `conf:"default:55"`
			TrailMaxPoints        int           `conf:"default:200"`
			MaxSampleAge          time.Duration `conf:"default:24h"`
			MaxClockSkew          time.Duration `conf:"default:2m"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Track buses in transit and estimate their arrival"
	const prefix = "TRACKER"

	// an optional .env file supplies TRACKER_* variables for local runs
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("main: unable to load .env file: %v", err)
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	tuning := tracking.Tuning{
		WindingFactor:         cfg.Tracking.WindingFactor,
		DefaultSpeedKmh:       cfg.Tracking.DefaultSpeedKmh,
		MinSpeedKmh:           cfg.Tracking.MinSpeedKmh,
		MaxPlausibleSpeedKmh:  cfg.Tracking.MaxPlausibleSpeedKmh,
		MinElapsed:            cfg.Tracking.MinElapsed,
		MinDeviceSpeedSamples: cfg.Tracking.MinDeviceSpeedSamples,
		HistoryWindow:         cfg.Tracking.HistoryWindow,
		StopPassedRatio:       cfg.Tracking.StopPassedRatio,
		LiveThreshold:         cfg.Tracking.LiveThreshold,
		TrailMinMeters:        cfg.Tracking.TrailMinMeters,
		TrailMaxPoints:        cfg.Tracking.TrailMaxPoints,
		MaxSampleAge:          cfg.Tracking.MaxSampleAge,
		MaxClockSkew:          cfg.Tracking.MaxClockSkew,
	}
	if err := tuning.Validate(); err != nil {
		return fmt.Errorf("invalid tracking configuration: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		DisableTLS:   cfg.DB.DisableTLS,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	store := fleet.MakeStore(db)
	lookup := tracking.LayeredLookup{}
	if len(cfg.Coordinates.File) > 0 {
		book, err := fleet.LoadCoordinateBook(cfg.Coordinates.File)
		if err != nil {
			return fmt.Errorf("loading coordinate book: %w", err)
		}
		log.Printf("main: loaded %d coordinates from %s", book.Len(), cfg.Coordinates.File)
		lookup = append(lookup, book)
	}
	lookup = append(lookup, store)

	metrics := tracker.NewCollector()

	// =========================================================================
	// Start NATS

	log.Printf("main: Connecting to nats at %s", cfg.Nats.Url)
	natsConn, err := nats.Connect(cfg.Nats.Url,
		nats.Name("fleetcast-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			metrics.NATSSetConnected(false)
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			metrics.NATSSetConnected(true)
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			metrics.NATSSetConnected(false)
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	metrics.NATSSetConnected(true)
	defer func() {
		log.Printf("main: Nats Stopping")
		if err := natsConn.Drain(); err != nil {
			log.Printf("main: error draining nats: %v", err)
		}
	}()

	// =========================================================================
	// Start MQTT

	var mqttClient mqtt.Client
	if len(cfg.Mqtt.Broker) > 0 {
		log.Printf("main: Connecting to mqtt broker at %s", cfg.Mqtt.Broker)
		mqttClient, err = tracker.ConnectMQTT(cfg.Mqtt.Broker, cfg.Mqtt.ClientID)
		if err != nil {
			return err
		}
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	tracker.StartServices(log, tracker.Config{
		HttpPort:             cfg.Web.Port,
		PositionSubject:      cfg.Nats.PositionSubject,
		UpdateSubject:        cfg.Nats.UpdateSubject,
		DeviceTopic:          cfg.Mqtt.Topic,
		FeedUrl:              cfg.Feed.Url,
		FeedLoadEverySeconds: cfg.Feed.LoadEverySeconds,
		ExpireArrivalsAfter:  time.Duration(cfg.Arrivals.ExpireSeconds) * time.Second,
		Tuning:               tuning,
		StatusCheck: func(ctx context.Context) error {
			return database.StatusCheck(ctx, db)
		},
	}, store, lookup, metrics, natsConn, mqttClient, shutdown)
	return nil
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
