package fanagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/saaga0h/zephyr-platform/internal/fancontrol"
	"github.com/saaga0h/zephyr-platform/internal/learning"
	"github.com/saaga0h/zephyr-platform/pkg/config"
	"github.com/saaga0h/zephyr-platform/pkg/mqtt"
	"github.com/saaga0h/zephyr-platform/pkg/redis"
)

// climateInput is the latest climate context received for a zone
type climateInput struct {
	CurrentTemperature float64
	TargetTemperature  float64
	Slope              float64
	HvacMode           fancontrol.Mode
	CurrentFanMode     string
	ReceivedAt         time.Time
}

// zoneState bundles the per-zone engine, learner, and latest input
type zoneState struct {
	controller *fancontrol.Controller
	learner    *learning.Learner
	input      *climateInput

	// lastArchivedCount prevents re-archiving an unchanged parameter set
	lastArchivedCount int
}

// Agent represents the fan automation agent. It consumes climate context per
// zone, runs the decision engine on a fixed tick, and publishes fan commands.
type Agent struct {
	mqtt    mqtt.Client
	redis   redis.Client
	cfg     *config.Config
	logger  *slog.Logger
	archive *learning.ParameterArchive

	zoneOverrides map[string]config.ZoneOverrides

	// stateMux serializes scheduled ticks against manual override events;
	// at most one decision computation is ever in flight
	stateMux sync.Mutex
	zones    map[string]*zoneState

	ticker   *time.Ticker
	stopChan chan struct{}
}

// NewAgent creates a new fan agent. The archive may be nil when the
// Postgres-backed parameter history is disabled.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, archive *learning.ParameterArchive, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:          mqttClient,
		redis:         redisClient,
		cfg:           cfg,
		logger:        logger,
		archive:       archive,
		zoneOverrides: map[string]config.ZoneOverrides{},
		zones:         make(map[string]*zoneState),
		stopChan:      make(chan struct{}),
	}
}

// Start starts the fan agent and begins processing
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting fan agent",
		"service_name", a.cfg.ServiceName,
		"tick_interval_sec", a.cfg.TickIntervalSec,
		"zones_file", a.cfg.ZonesFile)

	overrides, err := config.LoadZones(a.cfg.ZonesFile)
	if err != nil {
		return fmt.Errorf("failed to load zone overrides: %w", err)
	}
	a.zoneOverrides = overrides
	if len(overrides) > 0 {
		a.logger.Info("Loaded zone overrides", "zone_count", len(overrides))
	}

	// Connect to MQTT broker
	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// Verify Redis connection
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	// Subscribe to climate context
	if err := a.mqtt.Subscribe(mqtt.TopicClimateContext, 0, a.handleClimateMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicClimateContext, err)
	}
	a.logger.Info("Subscribed to climate context", "topic", mqtt.TopicClimateContext)

	// Subscribe to manual override events
	if err := a.mqtt.Subscribe(mqtt.TopicFanOverride, 0, a.handleOverrideMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicFanOverride, err)
	}
	a.logger.Info("Subscribed to fan overrides", "topic", mqtt.TopicFanOverride)

	a.startTickLoop()

	a.logger.Info("Fan agent started and ready")

	// Block until context is cancelled
	<-ctx.Done()
	a.logger.Info("Fan agent stopping")

	return nil
}

// Stop gracefully stops the fan agent, persisting all zone snapshots
func (a *Agent) Stop() error {
	a.logger.Info("Stopping fan agent")

	if a.ticker != nil {
		a.ticker.Stop()
	}
	close(a.stopChan)

	// Persist zone state before the connections go away
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.saveAllZones(ctx)

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Fan agent stopped")
	return nil
}

// GetZoneCount returns the number of tracked zones (for health check)
func (a *Agent) GetZoneCount() int {
	a.stateMux.Lock()
	defer a.stateMux.Unlock()
	return len(a.zones)
}

// startTickLoop starts the periodic control loop
func (a *Agent) startTickLoop() {
	a.ticker = time.NewTicker(a.cfg.TickInterval())

	go func() {
		a.logger.Info("Starting control tick loop", "interval_sec", a.cfg.TickIntervalSec)
		for {
			select {
			case <-a.ticker.C:
				a.performTick()
			case <-a.stopChan:
				return
			}
		}
	}()
}

// performTick runs one control cycle over all tracked zones
func (a *Agent) performTick() {
	ctx := context.Background()

	a.stateMux.Lock()
	defer a.stateMux.Unlock()

	staleCutoff := time.Now().Add(-3 * a.cfg.TickInterval())

	for zone, state := range a.zones {
		if state.input == nil {
			continue
		}
		if state.input.ReceivedAt.Before(staleCutoff) {
			a.logger.Debug("Skipping zone with stale climate data",
				"zone", zone,
				"received_at", state.input.ReceivedAt)
			continue
		}

		a.evaluateZone(ctx, zone, state)
	}
}

// evaluateZone runs the decision engine for one zone and publishes the
// outcome. Caller holds stateMux.
func (a *Agent) evaluateZone(ctx context.Context, zone string, state *zoneState) {
	input := state.input

	decision := state.controller.Compute(
		input.CurrentTemperature,
		input.TargetTemperature,
		input.Slope,
		input.HvacMode,
		input.CurrentFanMode,
	)

	changed := decision.FanMode != input.CurrentFanMode

	a.logger.Info("Fan decision",
		"zone", zone,
		"fan_mode", decision.FanMode,
		"changed", changed,
		"reason", decision.Reason,
		"temperature_error", decision.TemperatureError,
		"projected_error", decision.ProjectedTemperatureError)

	if changed {
		if err := a.publishFanCommand(zone, decision); err != nil {
			a.logger.Error("Failed to publish fan command", "zone", zone, "error", err)
		}
	}

	if err := a.publishFanContext(zone, decision); err != nil {
		a.logger.Error("Failed to publish fan context", "zone", zone, "error", err)
	}

	a.publishLearningState(ctx, zone, state)
}

// publishLearningState publishes the advisory learned parameters when the
// learner is ready, and archives newly derived sets. Parameters are never
// fed back into the live controller.
func (a *Agent) publishLearningState(ctx context.Context, zone string, state *zoneState) {
	params, ok := state.learner.ComputeOptimalParameters()
	if !ok {
		return
	}

	msg := map[string]interface{}{
		"source":            "fan-agent",
		"type":              "fan-learning",
		"zone":              zone,
		"parameters":        params,
		"sample_count":      state.learner.SampleCount(),
		"learning_progress": state.learner.Progress(),
		"timestamp":         time.Now().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("Failed to marshal learning context", "zone", zone, "error", err)
		return
	}

	topic := mqtt.FanLearningTopic(zone)
	if err := a.mqtt.Publish(topic, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish learning context", "zone", zone, "error", err)
		return
	}

	if a.archive != nil && params.SampleCount != state.lastArchivedCount {
		if err := a.archive.StoreParameterSet(ctx, zone, params); err != nil {
			a.logger.Error("Failed to archive parameter set", "zone", zone, "error", err)
			return
		}
		state.lastArchivedCount = params.SampleCount
	}
}

// handleClimateMessage handles incoming climate context messages
func (a *Agent) handleClimateMessage(msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	// Extract zone from topic: automation/context/climate/{zone}
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		a.logger.Warn("Invalid climate topic format", "topic", topic)
		return
	}
	zone := parts[3]

	var climateMsg struct {
		CurrentTemperature float64  `json:"current_temperature"`
		TargetTemperature  float64  `json:"target_temperature"`
		RateOfChange       float64  `json:"rate_of_change"`
		HvacMode           string   `json:"hvac_mode"`
		FanMode            string   `json:"fan_mode"`
		FanModes           []string `json:"fan_modes"`
	}

	if err := json.Unmarshal(payload, &climateMsg); err != nil {
		a.logger.Error("Failed to parse climate message",
			"zone", zone,
			"error", err)
		return
	}

	mode := fancontrol.ModeHeat
	if climateMsg.HvacMode == string(fancontrol.ModeCool) {
		mode = fancontrol.ModeCool
	}

	a.stateMux.Lock()
	defer a.stateMux.Unlock()

	state := a.ensureZone(zone)

	// Fan modes arrive lazily with the first complete climate context
	if len(state.controller.FanModes()) == 0 && len(climateMsg.FanModes) > 0 {
		state.controller.SetFanModes(climateMsg.FanModes)
		a.logger.Info("Discovered fan modes",
			"zone", zone,
			"fan_modes", climateMsg.FanModes)
	}

	state.input = &climateInput{
		CurrentTemperature: climateMsg.CurrentTemperature,
		TargetTemperature:  climateMsg.TargetTemperature,
		Slope:              climateMsg.RateOfChange,
		HvacMode:           mode,
		CurrentFanMode:     climateMsg.FanMode,
		ReceivedAt:         time.Now(),
	}

	a.logger.Debug("Received climate context",
		"zone", zone,
		"current", climateMsg.CurrentTemperature,
		"target", climateMsg.TargetTemperature,
		"slope", climateMsg.RateOfChange,
		"hvac_mode", climateMsg.HvacMode)
}

// handleOverrideMessage handles manual fan override events
func (a *Agent) handleOverrideMessage(msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	// Extract zone from topic: automation/override/fan/{zone}
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		a.logger.Warn("Invalid override topic format", "topic", topic)
		return
	}
	zone := parts[3]

	var overrideMsg struct {
		FanMode string `json:"fan_mode"`
	}

	if err := json.Unmarshal(payload, &overrideMsg); err != nil {
		a.logger.Error("Failed to parse override message",
			"zone", zone,
			"error", err)
		return
	}
	if overrideMsg.FanMode == "" {
		a.logger.Warn("Override without fan mode ignored", "zone", zone)
		return
	}

	a.stateMux.Lock()
	defer a.stateMux.Unlock()

	state := a.ensureZone(zone)
	decision := state.controller.ApplyManualOverride(overrideMsg.FanMode)

	// Keep the latest input consistent with the externally applied mode
	if state.input != nil {
		state.input.CurrentFanMode = overrideMsg.FanMode
	}

	a.logger.Info("Manual override applied",
		"zone", zone,
		"fan_mode", overrideMsg.FanMode)

	if err := a.publishFanContext(zone, decision); err != nil {
		a.logger.Error("Failed to publish fan context", "zone", zone, "error", err)
	}
}

// ensureZone returns the state for a zone, creating it (and attempting a
// snapshot restore) on first sight. Caller holds stateMux.
func (a *Agent) ensureZone(zone string) *zoneState {
	if state, exists := a.zones[zone]; exists {
		return state
	}

	controlSettings, learningSettings := a.settingsForZone(zone)

	learner := learning.NewLearner(learningSettings, a.logger)
	controller := fancontrol.NewController(controlSettings, nil, learner, a.logger)

	state := &zoneState{
		controller: controller,
		learner:    learner,
	}
	a.zones[zone] = state

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.restoreZone(ctx, zone, state)

	a.logger.Info("Tracking new zone",
		"zone", zone,
		"deadband", controlSettings.Deadband,
		"min_interval", controlSettings.MinInterval)

	return state
}

// settingsForZone merges the service-wide defaults with any per-zone
// overrides from the zones file
func (a *Agent) settingsForZone(zone string) (fancontrol.Settings, learning.Settings) {
	control := fancontrol.Settings{
		Deadband:       a.cfg.Deadband,
		MinInterval:    a.cfg.MinIntervalMinutes,
		SoftError:      a.cfg.SoftError,
		HardError:      a.cfg.HardError,
		LimitTimeout:   a.cfg.LimitTimeoutMinutes,
		SlopeThreshold: a.cfg.SlopeThreshold,
		TickInterval:   a.cfg.TickInterval(),
	}

	if o, exists := a.zoneOverrides[zone]; exists {
		if o.Deadband != nil {
			control.Deadband = *o.Deadband
		}
		if o.MinIntervalMinutes != nil {
			control.MinInterval = *o.MinIntervalMinutes
		}
		if o.SoftError != nil {
			control.SoftError = *o.SoftError
		}
		if o.HardError != nil {
			control.HardError = *o.HardError
		}
		if o.LimitTimeoutMinutes != nil {
			control.LimitTimeout = *o.LimitTimeoutMinutes
		}
		if o.SlopeThreshold != nil {
			control.SlopeThreshold = *o.SlopeThreshold
		}
	}

	if err := control.Validate(); err != nil {
		a.logger.Warn("Invalid zone settings, falling back to defaults",
			"zone", zone,
			"error", err)
		control = fancontrol.DefaultSettings()
		control.TickInterval = a.cfg.TickInterval()
	}

	learn := learning.Settings{
		StagnationThreshold: a.cfg.StagnationThreshold,
		Window:              time.Duration(a.cfg.WindowHours * float64(time.Hour)),
		MinSamples:          a.cfg.MinSamples,
	}
	if err := learn.Validate(); err != nil {
		a.logger.Warn("Invalid learning settings, falling back to defaults",
			"zone", zone,
			"error", err)
		learn = learning.DefaultSettings()
	}

	return control, learn
}

// publishFanCommand publishes the command message for an actuator change
func (a *Agent) publishFanCommand(zone string, decision *fancontrol.Decision) error {
	commandMsg := map[string]interface{}{
		"fan_mode":  decision.FanMode,
		"reason":    decision.Reason,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	payload, err := json.Marshal(commandMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal command message: %w", err)
	}

	topic := mqtt.FanCommandTopic(zone)
	if err := a.mqtt.Publish(topic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish command to %s: %w", topic, err)
	}

	a.logger.Debug("Published fan command", "topic", topic)
	return nil
}

// publishFanContext publishes the full decision for observers
func (a *Agent) publishFanContext(zone string, decision *fancontrol.Decision) error {
	contextMsg := map[string]interface{}{
		"source":    "fan-agent",
		"type":      "fan",
		"zone":      zone,
		"decision":  decision,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	payload, err := json.Marshal(contextMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal context message: %w", err)
	}

	topic := mqtt.FanContextTopic(zone)
	if err := a.mqtt.Publish(topic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish context to %s: %w", topic, err)
	}

	a.logger.Debug("Published fan context", "topic", topic)
	return nil
}
