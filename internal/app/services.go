package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/api"
	"github.com/dokzlo13/plantd/internal/clock"
	"github.com/dokzlo13/plantd/internal/config"
	"github.com/dokzlo13/plantd/internal/controller"
	"github.com/dokzlo13/plantd/internal/db"
	"github.com/dokzlo13/plantd/internal/hardware"
	"github.com/dokzlo13/plantd/internal/kv"
	"github.com/dokzlo13/plantd/internal/ledger"
	"github.com/dokzlo13/plantd/internal/moisture"
	"github.com/dokzlo13/plantd/internal/reconcile"
	"github.com/dokzlo13/plantd/internal/store"
	"github.com/dokzlo13/plantd/internal/telemetry"
	"github.com/dokzlo13/plantd/internal/transport"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	DeviceID string
	Topics   transport.Topics

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	Settings *store.Store

	// Device I/O
	Driver hardware.Driver
	MQTT   *transport.Client
	Clock  clock.Clock

	// Built on Start, after an optional settings reset
	Controller *controller.Controller
	Status     *api.Server

	wg sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	deviceID, err := resolveDeviceID(cfg)
	if err != nil {
		return nil, err
	}
	s.DeviceID = deviceID
	s.Topics = transport.Topics{Prefix: cfg.MQTT.TopicPrefix, DeviceID: deviceID}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	s.Clock = clock.NewSystem(loc)

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Settings = store.New(kv.NewSQLiteBucket(database.DB, store.BucketName))
	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
	}

	s.Driver, err = openDriver(cfg.Hardware)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.MQTT = transport.New(transport.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientIDPrefix + deviceID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		CommandTopic:   s.Topics.Command(),
		HelloTopic:     cfg.MQTT.HelloTopic,
		HelloPayload:   transport.DefaultHelloPayload,
		KeepAlive:      cfg.MQTT.KeepAlive.Duration(),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
		WriteTimeout:   cfg.MQTT.WriteTimeout.Duration(),
		QueueSize:      cfg.MQTT.QueueSize,
	})

	return s, nil
}

// buildController loads durable settings and wires the control loop.
func (s *Services) buildController() error {
	settings, err := s.Settings.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	var recorder controller.Recorder
	if s.Ledger != nil {
		recorder = s.Ledger
	}

	publisher := telemetry.NewPublisher(s.MQTT, s.Topics.Telemetry(), s.cfg.Telemetry.MaxPayload, s.cfg.MQTT.PublishRPS)

	s.Controller = controller.New(
		controller.Config{
			DeviceID:          s.DeviceID,
			TelemetrySchedule: s.cfg.Telemetry.Schedule,
			ScheduleTick:      s.cfg.Reconciler.ScheduleTick.Duration(),
		},
		reconcile.NewState(settings.Name, settings.Schedule),
		controller.Deps{
			Clock:      s.Clock,
			Reconciler: reconcile.New(s.cfg.Device.OverrideDuration.Duration()),
			Sensor:     s.Driver,
			Actuator:   s.Driver,
			Converter:  moisture.NewConverter(s.cfg.Device.AirValue, s.cfg.Device.WaterValue),
			Settings:   s.Settings,
			Publisher:  publisher,
			Ledger:     recorder,
			Commands:   s.MQTT.Commands(),
		},
	)

	if s.cfg.HTTP.Enabled {
		var ledgerReader api.LedgerReader
		if s.Ledger != nil {
			ledgerReader = s.Ledger
		}
		s.Status = api.NewServer(s.Controller, s.MQTT, ledgerReader, s.cfg.ShutdownTimeout.Duration())
	}

	return nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when the control loop cannot run.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.buildController(); err != nil {
		return err
	}

	log.Info().
		Str("device_id", s.DeviceID).
		Str("telemetry_topic", s.Topics.Telemetry()).
		Str("command_topic", s.Topics.Command()).
		Msg("Device configured")

	s.MQTT.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Controller.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()

	if s.Ledger != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runLedgerCleanup(ctx, s.Ledger, s.cfg.Ledger)
		}()
	}

	if s.Status != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Status.Run(ctx, s.cfg.HTTP.Addr()); err != nil {
				log.Error().Err(err).Msg("Status server error")
			}
		}()
	}

	return nil
}

// ResetSettings clears the persisted name and schedule.
func (s *Services) ResetSettings() error {
	if err := s.Settings.Reset(); err != nil {
		return fmt.Errorf("failed to reset settings: %w", err)
	}
	log.Info().Msg("Settings reset to defaults")
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.wg.Wait()
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Driver != nil {
		if err := s.Driver.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close hardware driver")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func resolveDeviceID(cfg *config.Config) (string, error) {
	if cfg.Device.ID != "" {
		return cfg.Device.ID, nil
	}
	id, err := transport.DeviceID()
	if err != nil {
		return "", fmt.Errorf("failed to derive device id (set device.id): %w", err)
	}
	return id, nil
}
