package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/db"
	"github.com/thatsimonsguy/appliance-controller/internal/api"
	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/config"
	"github.com/thatsimonsguy/appliance-controller/internal/controllers/thermostat"
	"github.com/thatsimonsguy/appliance-controller/internal/controllers/washer"
	"github.com/thatsimonsguy/appliance-controller/internal/datadog"
	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
	"github.com/thatsimonsguy/appliance-controller/internal/logging"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
	"github.com/thatsimonsguy/appliance-controller/internal/notifications"
	"github.com/thatsimonsguy/appliance-controller/internal/temperature"
	"github.com/thatsimonsguy/appliance-controller/system/shutdown"
	"github.com/thatsimonsguy/appliance-controller/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Log)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_file", cfg.DBFile).
		Bool("thermostat", cfg.Thermostat.Enabled).
		Bool("washer", cfg.Washer.Enabled).
		Msg("Starting appliance controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: relay writes are disabled system-wide")
	}

	datadog.InitMetrics(cfg.Datadog)
	notifications.Init(cfg.NtfyServer, cfg.NtfyTopic)

	washCfg := washer.DefaultConfig()
	if cfg.Washer.Enabled {
		var err error
		if washCfg, err = cfg.Washer.SequencerConfig(); err != nil {
			log.Fatal().Err(err).Msg("Failed to build washer config")
		}
	}

	conn, err := db.Open(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	if err := db.SeedDatabase(conn, washCfg.DefaultMode); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed state database")
	}
	store := db.NewStore(conn)

	hw, err := openHardware(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to claim GPIO lines")
	}
	relays := hw.relays()
	shutdown.Register(relays, conn, hw.chip)

	if err := gpio.ValidateStartupPins(hw.chip.BootLevels(), relays); err != nil {
		shutdown.ShutdownWithError(err, "Refusing to enable relay board due to unsafe pin states")
	}

	if cfg.System.InstallServices {
		installServices(cfg.System, relays)
	}

	sinks := buildSinks(cfg)

	clk := clock.NewMonotonic()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		wg        sync.WaitGroup
		apiThermo api.Thermostat
		apiWasher api.Washer
	)

	if cfg.Thermostat.Enabled {
		tc := thermostat.New(cfg.Thermostat.ControllerConfig(), hw.ac, sinks)

		recent, err := db.GetRecentDwell(conn)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read thermostat dwell state, assuming none")
		}
		tc.Restore(clk.Now(), recent)

		sensor := temperature.NewW1Sensor(cfg.Thermostat.W1DevicesDir, cfg.Thermostat.SensorBus, cfg.Thermostat.SensorRetries)
		filterCfg := temperature.DefaultFilterConfig()
		filterCfg.MaxDelta = cfg.Thermostat.SpikeMaxDelta

		runner := &thermostat.Runner{
			Controller: tc,
			Sensor:     temperature.NewFilter("thermostat", sensor, notifications.Sender{}, filterCfg),
			Store:      store,
			Clock:      clk,
			Interval:   cfg.PollInterval(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
		apiThermo = tc
	}

	if cfg.Washer.Enabled {
		ws := washer.New(washCfg, hw.washer, store, sinks)

		rec, err := db.GetWashState(conn)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read wash state, starting idle")
			rec = washer.Record{Mode: washCfg.DefaultMode, Stage: model.StageOff}
		}
		ws.Restore(rec)

		runner := &washer.Runner{
			Sequencer: ws,
			Level:     hw.level,
			Clock:     clk,
			Interval:  cfg.PollInterval(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
		apiWasher = ws
	}

	server := api.NewServer(apiThermo, apiWasher, conn, clk)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx, cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("REST API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	wg.Wait()

	// Stages are left as persisted so an interrupted cycle is reported on the
	// next start.
	sinks.Close()
	datadog.Close()
	shutdown.Shutdown()
}

func installServices(cfg startup.Config, relays []gpio.Relay) {
	err := errors.Join(
		startup.WriteStartupScript(cfg.BootScript, relays),
		startup.InstallStartupService(cfg),
		startup.InstallMainService(cfg),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to install startup services")
		return
	}
	log.Info().Str("boot_script", cfg.BootScript).Msg("Startup services installed")
}
