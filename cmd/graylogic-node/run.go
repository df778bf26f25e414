package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/diag"
	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/journal"
	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/link/host"
	"github.com/nerrad567/gray-logic-node/internal/metrics"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/status"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
	"github.com/nerrad567/gray-logic-node/internal/update"
	"github.com/nerrad567/gray-logic-node/internal/update/otahttp"
	"github.com/nerrad567/gray-logic-node/internal/watchdog"
	"github.com/nerrad567/gray-logic-node/migrations"
)

const (
	// watchdogExitCode is returned when the software watchdog expires so
	// the service manager restarts the node.
	watchdogExitCode = 3

	statusSampleInterval = time.Minute
	shutdownTimeout      = 5 * time.Second
)

// run wires the node and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "link", cfg.Link.Type)

	clk := clock.Real()

	// Watchdog
	wd, feeds, closeWatchdog, err := openWatchdog(cfg.Watchdog, clk, log.Component("watchdog"))
	if err != nil {
		return err
	}
	defer closeWatchdog()

	// Link
	linkMgr, closeLink, err := openLink(ctx, cfg.Link, clk, wd, log.Component("link"))
	if err != nil {
		return err
	}
	defer closeLink()
	resolver := identity.NewResolver(linkMgr)

	// Update listener; the arbiter holds it back until the link is up.
	listener := otahttp.New(cfg.Update.Listen, otahttp.FileInstaller{Path: cfg.Update.ImagePath})
	listener.SetLogger(log.Component("update"))
	listener.SetMaxImageSize(cfg.Update.MaxImageSize)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := listener.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping update listener", "error", err)
		}
	}()
	arbiter := update.NewArbiter(listener, resolver, update.Config{
		HostnameTemplate: cfg.Update.Hostname,
		Secret:           cfg.Update.Secret,
	}, wd)
	arbiter.SetLogger(log.Component("update"))

	// Session
	transport, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT transport: %w", err)
	}
	transport.SetLogger(log.Component("mqtt"))
	defer func() {
		if err := transport.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}()
	sessionMgr := session.NewManager(sessionConfig(cfg.MQTT), session.Dependencies{
		Transport: transport,
		Clock:     clk,
		Expander:  resolver,
		Feeder:    wd,
		Servicer:  arbiter,
		Link:      link.Checker{Manager: linkMgr},
	})
	sessionMgr.SetLogger(log.Component("session"))

	// Supervisor
	var indicator status.Indicator
	if cfg.Device.Indicator == "log" {
		indicator = status.NewLogIndicator(log.Component("status"))
	}
	sup := supervisor.New(supervisor.Config{
		WatchdogTimeout: cfg.Watchdog.Timeout,
		IdleInterval:    cfg.Supervisor.IdleInterval,
		Name:            cfg.Device.Name,
	}, supervisor.Dependencies{
		Clock:    clk,
		Link:     linkMgr,
		Session:  sessionMgr,
		Arbiter:  arbiter,
		Reporter: status.NewReporter(indicator),
		Watchdog: wd,
		Identity: resolver,
	})
	sup.SetLogger(log.Component("supervisor"))

	var checks []diag.HealthCheck

	// Journal
	var jrnl *journal.Journal
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}()
		jrnl = journal.New(db.DB, clk, journal.DefaultQueueSize)
		jrnl.SetLogger(log.Component("journal"))
		bootID, err := jrnl.RecordBoot(ctx, version)
		if err != nil {
			return fmt.Errorf("recording boot: %w", err)
		}
		log.Info("journal opened", "path", cfg.Database.Path, "boot_id", bootID)
		sup.AddObserver(jrnl)
		sup.AddObserver(deviceRecorder(ctx, func() string { return sup.Snapshot().Device }, jrnl, log))
		checks = append(checks, diag.HealthCheck{Name: "database", Check: db.HealthCheck})
	}

	// InfluxDB is optional; a missing server does not stop the node.
	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("influxdb unavailable, continuing without it", "error", err)
		} else {
			influx.SetOnError(func(err error) {
				log.Warn("influxdb write failed", "error", err)
			})
			defer influx.Close() //nolint:errcheck // Close always returns nil
			sup.AddObserver(supervisor.ObserverFunc(func(t supervisor.Transition) {
				influx.WriteTransition(sup.Snapshot().Device, t.From.String(), t.To.String(), t.Reason, t.At)
			}))
			checks = append(checks, diag.HealthCheck{Name: "influxdb", Check: influx.HealthCheck})
		}
	}

	// Metrics and diagnostics
	m := metrics.New(metrics.Sources{
		Snapshot: sup.Snapshot,
		Session:  sessionMgr.Stats,
		Updates:  arbiter.Updates,
		Feeds:    feeds,
		Dropped:  transport.Dropped,
	})
	sup.AddObserver(m)

	if cfg.Diagnostics.Enabled {
		deps := diag.Deps{
			Config:   cfg.Diagnostics,
			Logger:   log.Component("diag"),
			Snapshot: sup.Snapshot,
			Metrics:  m.Handler(),
			Checks:   checks,
			Version:  version,
		}
		if jrnl != nil {
			deps.Journal = jrnl
		}
		srv, err := diag.New(deps)
		if err != nil {
			return fmt.Errorf("creating diagnostics server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Error("error closing diagnostics server", "error", err)
			}
		}()
		sup.AddObserver(srv)
	}

	// Background writers stop with ctx.
	if jrnl != nil {
		go func() {
			if err := jrnl.Run(ctx); err != nil {
				log.Error("journal stopped", "error", err)
			}
		}()
	}
	if influx != nil {
		go influx.RunSampler(ctx, clk, statusSampleInterval,
			func() string { return sup.Snapshot().Device },
			func() influxdb.StatusSample { return statusSample(sup.Snapshot()) })
	}

	sched := scheduler.New(clk)
	sched.SetLogger(log.Component("scheduler"))
	err = sched.Run(ctx, sup, scheduler.Hooks{
		Finish: func() { log.Info("node initialised") },
	})
	log.Info("shutting down", "state", sup.State().String())
	return err
}

// openWatchdog returns the kernel watchdog when a device is configured and
// the software watchdog otherwise. feeds is nil for the kernel watchdog.
func openWatchdog(cfg config.WatchdogConfig, clk clock.Clock, log *logging.Logger) (watchdog.Timer, func() uint64, func(), error) {
	if cfg.Device != "" {
		dev, err := watchdog.OpenDevice(cfg.Device)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening watchdog %s: %w", cfg.Device, err)
		}
		dev.SetLogger(log)
		return dev, nil, func() {
			if err := dev.Close(); err != nil {
				log.Error("error closing watchdog", "error", err)
			}
		}, nil
	}

	sw := watchdog.NewSoftware(clk, func() {
		log.Error("liveness watchdog expired, restarting", "exit_code", watchdogExitCode)
		os.Exit(watchdogExitCode)
	})
	sw.SetLogger(log)
	return sw, sw.Feeds, sw.Stop, nil
}

// openLink builds the configured link manager on the host's interface.
func openLink(ctx context.Context, cfg config.LinkConfig, clk clock.Clock, feeder link.Feeder, log *logging.Logger) (link.Manager, func(), error) {
	switch cfg.Type {
	case config.LinkEthernet:
		phy := host.NewEthernet(cfg.Interface)
		wired := link.NewWired(phy, link.WiredConfig{
			Poll:        link.PollPolicy{Attempts: cfg.Poll.Attempts, Interval: cfg.Poll.Interval},
			AddressPoll: link.PollPolicy{Attempts: cfg.AddressPoll.Attempts, Interval: cfg.AddressPoll.Interval},
		}, clk, feeder)
		wired.SetLogger(log)
		return wired, phy.Close, nil

	default:
		radio := host.NewNMRadio(cfg.NMCLI, cfg.Interface, host.ExecRunner{})
		radio.SetLogger(log)
		if err := radio.Watch(ctx); err != nil {
			return nil, nil, err
		}
		wireless := link.NewWireless(radio, link.WirelessConfig{
			SSID:       cfg.SSID,
			Password:   cfg.Password,
			Username:   cfg.Username,
			Enterprise: cfg.Enterprise,
			Scan:       cfg.Scan,
			Poll:       link.PollPolicy{Attempts: cfg.Poll.Attempts, Interval: cfg.Poll.Interval},
		}, clk, feeder)
		wireless.SetLogger(log)
		return wireless, func() {
			if err := radio.Close(); err != nil {
				log.Error("error stopping nmcli monitor", "error", err)
			}
		}, nil
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func sessionConfig(cfg config.MQTTConfig) session.Config {
	return session.Config{
		ClientIDTemplate:      cfg.Broker.ClientID,
		Username:              cfg.Auth.Username,
		Password:              cfg.Auth.Password,
		WillTopicTemplate:     cfg.LastWillTopic,
		WillPayload:           cfg.WillPayload,
		PresencePayload:       cfg.PresencePayload,
		Retained:              cfg.Retained,
		LivenessTopicTemplate: cfg.LivenessTopic,
		Cooldown:              cfg.Reconnect.Cooldown,
		WaitSlices:            cfg.Reconnect.WaitSlices,
		WaitSlice:             cfg.Reconnect.WaitSlice,
	}
}

// deviceRecorder stores the device name on the boot row once the first
// link comes up.
func deviceRecorder(ctx context.Context, device func() string, j *journal.Journal, log *logging.Logger) supervisor.Observer {
	recorded := false
	return supervisor.ObserverFunc(func(t supervisor.Transition) {
		if recorded || t.To == status.LinkDown {
			return
		}
		name := device()
		if name == "" {
			return
		}
		recorded = true
		go func() {
			if err := j.SetDevice(ctx, name); err != nil {
				log.Warn("recording device identity failed", "error", err)
			}
		}()
	})
}

func statusSample(s supervisor.Snapshot) influxdb.StatusSample {
	return influxdb.StatusSample{
		State:       int(s.State),
		StateName:   s.StateName,
		Color:       s.Color,
		Iterations:  s.Iterations,
		Disconnects: s.Disconnects,
		InitFailed:  s.InitFailed,
	}
}
