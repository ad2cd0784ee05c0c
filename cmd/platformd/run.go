package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/nerrad567/gray-logic-platform/internal/api"
	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/canbus"
	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-platform/internal/journal"
	"github.com/nerrad567/gray-logic-platform/internal/platform"
	"github.com/nerrad567/gray-logic-platform/internal/process"
	"github.com/nerrad567/gray-logic-platform/internal/supervise"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/migrations"
)

// healthCheckTimeout bounds the startup connectivity check.
const healthCheckTimeout = 5 * time.Second

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown and an error when startup fails or the platform
// reports a fatal condition.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting platformd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, logFile, err := logging.New(cfg.Logging, version)
	if err != nil {
		return err
	}
	defer logFile.Close() //nolint:errcheck // last thing to go
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)
	go toggleDebugOnSignal(ctx, log)

	lock, err := acquireLock(cfg.Platform.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			log.Warn("releasing lock file", "error", unlockErr)
		}
	}()

	// Journal
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	journalRepo := journal.NewSQLiteRepository(db.DB)
	journalWriter := journal.NewWriter(journalRepo, journal.DefaultQueueSize, log.Component("journal"))
	defer journalWriter.Close()

	retention := &journal.Retention{
		Pruner:    journalRepo,
		Compactor: db,
		MaxAge:    cfg.Database.Retention,
		Interval:  cfg.Database.PruneInterval,
		Logger:    log.Component("journal"),
	}
	go retention.Run(ctx)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(cfg.InfluxDB, cfg.Site.ID, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	hcCtx, hcCancel := context.WithTimeout(ctx, healthCheckTimeout)
	err = healthCheck(hcCtx, db, mqttClient, influxClient)
	hcCancel()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Supervisor
	backend, err := supervise.NewBackend(cfg.Supervisor, log.Component("supervise"))
	if err != nil {
		return fmt.Errorf("creating supervisor backend: %w", err)
	}
	registry := supervise.NewRegistry(backend)
	registry.SetLogger(log.Component("supervise"))
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing supervisor backend", "error", closeErr)
		}
	}()
	log.Info("supervisor backend ready", "backend", cfg.Supervisor.Backend)

	// Event loop and remote-object tree
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2
	topics := mqttClient.Topics()
	loop := event.NewLoop()
	loop.SetLogger(log.Component("loop"))
	objects := tree.New()
	objects.SetLogger(log.Component("tree"))
	objects.Attach(loop)

	publisher := platform.NewMQTTPublisher(mqttClient, topics, qos)
	app, err := platform.New(platform.Deps{
		Config:    cfg,
		Loop:      loop,
		Tree:      objects,
		Registry:  registry,
		Publisher: publisher,
		Runner:    process.Exec{Logger: log.Component("process")},
		Sources:   journalWriter,
		Logger:    log.Component("platform"),
	})
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}

	// Status API
	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Loop:     loop,
			App:      app,
			Services: registry,
			Values:   publisher,
			Journal:  journalRepo,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	wireObservers(registry, app, journalWriter, influxClient, server)

	transport := tree.NewTransport(mqttClient, loop, topics, qos)
	transport.SetLogger(log.Component("tree"))
	if err := transport.Start(); err != nil {
		return fmt.Errorf("subscribing to services: %w", err)
	}
	if err := app.ListenWrites(mqttClient, topics, qos); err != nil {
		return fmt.Errorf("subscribing to platform writes: %w", err)
	}
	app.Start()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if runErr := loop.Run(loopCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("event loop stopped", "error", runErr)
		}
	}()
	defer func() {
		stopLoop()
		<-loopDone
		app.Close()
	}()

	if server != nil {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if monitor := canbus.NewMonitor(cfg.CANBus, publisher); monitor != nil {
		monitor.SetLogger(log.Component("canbus"))
		if err := monitor.Start(ctx); err != nil {
			log.Warn("CAN interface monitor failed to start", "error", err)
		}
		defer monitor.Stop()
	}

	log.Info("initialisation complete, waiting for settings",
		"settings_service", cfg.Platform.SettingsService,
		"timeout", cfg.Platform.SettingsTimeout,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		return nil
	case fatalErr := <-app.Fatal():
		log.Error("platform failure, exiting", "error", fatalErr)
		return fatalErr
	}
}

// acquireLock takes the single-instance lock.
func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another platformd instance holds %s", path)
	}
	return lock, nil
}

// connectInflux returns nil without error when InfluxDB is disabled.
func connectInflux(cfg config.InfluxDBConfig, site string, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg, site)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client, nil
}

// wireObservers fans supervisor commands, gate edges and binding
// decisions out to the journal, metrics and the event stream.
func wireObservers(registry *supervise.Registry, app *platform.Application, jw *journal.Writer, influx *influxdb.Client, server *api.Server) {
	registry.OnCommand(jw.Command)
	app.OnGateChange(jw.Gate)

	if influx != nil {
		wireMetrics(registry, app, jw, influx)
	}

	if server != nil {
		hub := server.Hub()
		registry.OnCommand(hub.Command)
		app.OnGateChange(hub.Gate)
		app.OnBindingApplied(hub.BindingApplied)
	}
}

// metricsWriter is the part of the InfluxDB client the observers use.
type metricsWriter interface {
	WriteCommand(service, command, source string, failed bool, at time.Time)
	WriteGateState(gate string, active bool, reasons int)
	WriteBindingDecision(binding string, enabled bool, mode int64)
}

// wireMetrics records commands under the same source the journal uses.
func wireMetrics(registry *supervise.Registry, app *platform.Application, jw *journal.Writer, metrics metricsWriter) {
	registry.OnCommand(func(rec supervise.Record) {
		metrics.WriteCommand(rec.Service, string(rec.Command), jw.Source(rec.Service), rec.Err != nil, rec.At)
	})
	app.OnGateChange(func(name string, active bool, reasons []string) {
		metrics.WriteGateState(name, active, len(reasons))
	})
	app.OnBindingApplied(func(a binding.Applied) {
		metrics.WriteBindingDecision(a.Binding, a.Change.Next.Enabled, int64(a.Change.Next.Mode))
	})
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// toggleDebugOnSignal flips debug logging on SIGUSR1 until ctx is done.
func toggleDebugOnSignal(ctx context.Context, log *logging.Logger) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-usr1:
			log.Warn("log level changed", "level", log.ToggleDebug().String())
		}
	}
}
