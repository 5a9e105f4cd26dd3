// Package controller runs the loop that owns the device state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/clock"
	"github.com/dokzlo13/plantd/internal/command"
	"github.com/dokzlo13/plantd/internal/hardware"
	"github.com/dokzlo13/plantd/internal/ledger"
	"github.com/dokzlo13/plantd/internal/moisture"
	"github.com/dokzlo13/plantd/internal/reconcile"
	"github.com/dokzlo13/plantd/internal/schedule"
	"github.com/dokzlo13/plantd/internal/telemetry"
	"github.com/dokzlo13/plantd/internal/transport"
)

// Loop defaults
const (
	DefaultTelemetrySchedule = "@every 5m"
	DefaultScheduleTick      = time.Second
)

// Settings persists the durable fields.
type Settings interface {
	SaveName(name string) error
	SaveSchedule(w schedule.Window) error
}

// Recorder appends to the command ledger.
type Recorder interface {
	Append(eventType ledger.EventType, source string, payload map[string]any) (string, error)
}

// Config holds loop settings.
type Config struct {
	DeviceID          string
	TelemetrySchedule string
	ScheduleTick      time.Duration
}

// Deps are the collaborators the loop drives. Ledger may be nil.
type Deps struct {
	Clock      clock.Clock
	Reconciler *reconcile.Reconciler
	Sensor     hardware.Sensor
	Actuator   hardware.Actuator
	Converter  moisture.Converter
	Settings   Settings
	Publisher  *telemetry.Publisher
	Ledger     Recorder
	Commands   <-chan transport.Message
}

// Status is the view of the device exposed outside the loop.
type Status struct {
	Snapshot          telemetry.Snapshot `json:"snapshot"`
	Duty              uint8              `json:"duty"`
	OverrideArmed     bool               `json:"override_armed"`
	OverrideRemaining time.Duration      `json:"override_remaining_ns"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Controller owns reconcile.State. Every mutation happens on the goroutine
// running Run; readers get copies through Status.
type Controller struct {
	cfg  Config
	deps Deps

	state reconcile.State

	// Last good sensor reading, reused when a read fails.
	lastMoisture int
	haveReading  bool

	telemetryTick chan struct{}

	mu        sync.RWMutex
	status    Status
	hasStatus bool
}

// New creates a Controller starting from initial, which carries the
// durable settings loaded at startup.
func New(cfg Config, initial reconcile.State, deps Deps) *Controller {
	if cfg.TelemetrySchedule == "" {
		cfg.TelemetrySchedule = DefaultTelemetrySchedule
	}
	if cfg.ScheduleTick <= 0 {
		cfg.ScheduleTick = DefaultScheduleTick
	}
	if deps.Reconciler == nil {
		deps.Reconciler = reconcile.New(0)
	}

	return &Controller{
		cfg:           cfg,
		deps:          deps,
		state:         initial,
		telemetryTick: make(chan struct{}, 1),
	}
}

// Run boots the device and processes commands and ticks until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(c.cfg.TelemetrySchedule, c.TriggerTelemetry); err != nil {
		return fmt.Errorf("invalid telemetry schedule %q: %w", c.cfg.TelemetrySchedule, err)
	}

	c.Boot(ctx)

	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	ticker := time.NewTicker(c.cfg.ScheduleTick)
	defer ticker.Stop()

	log.Info().
		Str("device_id", c.cfg.DeviceID).
		Str("telemetry_schedule", c.cfg.TelemetrySchedule).
		Dur("schedule_tick", c.cfg.ScheduleTick).
		Msg("Controller started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Controller stopping")
			return nil
		}

		// One pass: command, then telemetry, then schedule.
		handled := false
		select {
		case msg := <-c.deps.Commands:
			c.HandleCommand(ctx, msg)
			handled = true
		default:
		}
		select {
		case <-c.telemetryTick:
			c.TelemetryTick(ctx)
			handled = true
		default:
		}
		select {
		case <-ticker.C:
			c.ScheduleTick(ctx)
			handled = true
		default:
		}
		if handled {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Controller stopping")
			return nil
		case msg := <-c.deps.Commands:
			c.HandleCommand(ctx, msg)
		case <-c.telemetryTick:
			c.TelemetryTick(ctx)
		case <-ticker.C:
			c.ScheduleTick(ctx)
		}
	}
}

// TriggerTelemetry requests a telemetry publish on the next pass.
func (c *Controller) TriggerTelemetry() {
	select {
	case c.telemetryTick <- struct{}{}:
	default:
		// Already pending
	}
}

// Boot derives the initial output, writes it and publishes the first snapshot.
func (c *Controller) Boot(ctx context.Context) {
	now := c.deps.Clock.Now()
	next, actions := c.deps.Reconciler.Boot(c.state, now)
	c.state = next

	log.Info().
		Bool("effective", c.state.EffectiveOn()).
		Uint8("duty", c.state.Duty()).
		Bool("schedule_enabled", c.state.Schedule.Enabled).
		Msg("Booted")

	c.execute(ctx, actions, now, "boot")
}

// HandleCommand parses and applies one inbound message.
func (c *Controller) HandleCommand(ctx context.Context, msg transport.Message) {
	d, err := command.Parse(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("Dropping command")
		c.record(ledger.EventCommandRejected, msg.Topic, map[string]any{
			"error":   err.Error(),
			"payload": string(msg.Payload),
		})
		return
	}

	rejected := make([]string, 0, len(d.Rejected))
	for _, v := range d.Rejected {
		log.Warn().Str("field", v.Field).Str("reason", v.Reason).Msg("Ignoring invalid command field")
		rejected = append(rejected, v.Error())
	}

	now := c.deps.Clock.Now()
	next, actions := c.deps.Reconciler.Apply(c.state, d, now)
	c.state = next

	log.Info().
		Str("directive", d.String()).
		Strs("actions", actions.Strings()).
		Bool("effective", c.state.EffectiveOn()).
		Uint8("duty", c.state.Duty()).
		Msg("Applied command")

	payload := map[string]any{
		"fields":  d.Fields(),
		"actions": actions.Strings(),
		"duty":    int(c.state.Duty()),
	}
	if len(rejected) > 0 {
		payload["rejected"] = rejected
	}
	c.record(ledger.EventCommandApplied, msg.Topic, payload)

	c.execute(ctx, actions, now, msg.Topic)
}

// ScheduleTick re-evaluates the window and override expiry, and sends any
// snapshot the rate limiter held back.
func (c *Controller) ScheduleTick(ctx context.Context) {
	c.flushTelemetry(ctx)

	now := c.deps.Clock.Now()
	next, actions := c.deps.Reconciler.Tick(c.state, now)
	c.state = next
	if len(actions) == 0 {
		return
	}
	c.execute(ctx, actions, now, "tick")
}

// TelemetryTick reads the sensor and publishes a snapshot.
func (c *Controller) TelemetryTick(ctx context.Context) {
	now := c.deps.Clock.Now()
	c.publish(ctx, now)
	c.storeStatus(now)
}

// execute performs actions in a fixed order: actuator first, then storage,
// then publish. Failures are logged and never stop the pass.
func (c *Controller) execute(ctx context.Context, actions reconcile.Actions, now clock.Instant, source string) {
	defer c.storeStatus(now)

	if actions.Has(reconcile.ActionRefresh) {
		c.publish(ctx, now)
		return
	}

	if actions.Has(reconcile.ActionWriteDuty) {
		if err := c.deps.Actuator.SetDuty(c.state.Duty()); err != nil {
			log.Error().Err(err).Uint8("duty", c.state.Duty()).Msg("Failed to write duty")
		}
	}

	if actions.Has(reconcile.ActionPersistName) && c.deps.Settings != nil {
		if err := c.deps.Settings.SaveName(c.state.Name); err != nil {
			log.Error().Err(err).Msg("Failed to persist name")
		}
	}

	if actions.Has(reconcile.ActionPersistSchedule) && c.deps.Settings != nil {
		if err := c.deps.Settings.SaveSchedule(c.state.Schedule); err != nil {
			log.Error().Err(err).Msg("Failed to persist schedule")
		}
	}

	if actions.Has(reconcile.ActionOverrideExpired) {
		log.Info().Bool("effective", c.state.EffectiveOn()).Msg("Override expired")
		c.record(ledger.EventOverrideExpired, source, map[string]any{
			"effective": c.state.EffectiveOn(),
			"duty":      int(c.state.Duty()),
		})
	}

	if actions.Has(reconcile.ActionPublish) {
		c.publish(ctx, now)
	}
}

// publish samples the sensor and sends a snapshot. A failed read reuses the
// last good reading.
func (c *Controller) publish(ctx context.Context, now clock.Instant) {
	raw, err := c.deps.Sensor.ReadRaw()
	if err != nil {
		log.Warn().Err(err).Bool("have_previous", c.haveReading).Msg("Sensor read failed")
	} else {
		c.lastMoisture = c.deps.Converter.Percent(raw)
		c.haveReading = true
	}

	if c.deps.Publisher == nil {
		return
	}

	snap := telemetry.Build(c.cfg.DeviceID, c.state, c.lastMoisture, now)
	err = c.deps.Publisher.Publish(ctx, snap)
	switch {
	case err == nil:
	case errors.Is(err, telemetry.ErrRateLimited):
		// held by the publisher, sent on a later schedule tick
	case errors.Is(err, transport.ErrNotConnected):
		log.Warn().Msg("Broker unavailable, telemetry not sent")
	case errors.Is(err, telemetry.ErrPayloadTooLarge):
		log.Error().Err(err).Msg("Telemetry snapshot too large, not sent")
	default:
		log.Error().Err(err).Msg("Failed to publish telemetry")
	}
}

func (c *Controller) flushTelemetry(ctx context.Context) {
	if c.deps.Publisher == nil {
		return
	}
	if _, err := c.deps.Publisher.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to send held telemetry")
	}
}

func (c *Controller) record(eventType ledger.EventType, source string, payload map[string]any) {
	if c.deps.Ledger == nil {
		return
	}
	if _, err := c.deps.Ledger.Append(eventType, source, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to append to ledger")
	}
}

func (c *Controller) storeStatus(now clock.Instant) {
	st := Status{
		Snapshot:      telemetry.Build(c.cfg.DeviceID, c.state, c.lastMoisture, now),
		Duty:          c.state.Duty(),
		OverrideArmed: c.state.OverrideArmed(),
		UpdatedAt:     time.Now(),
	}
	if c.state.Override != nil {
		st.OverrideRemaining = c.state.Override.Until - now.Elapsed
	}

	c.mu.Lock()
	c.status = st
	c.hasStatus = true
	c.mu.Unlock()
}

// Status returns the state as of the last completed pass. ok is false
// before the controller has booted.
func (c *Controller) Status() (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.hasStatus
}
