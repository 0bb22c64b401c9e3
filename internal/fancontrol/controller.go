package fancontrol

import (
	"log/slog"
	"math"
	"slices"
	"time"
)

// SampleSink receives qualifying samples from the controller. The calibration
// subsystem implements it; a nil sink disables sample forwarding.
type SampleSink interface {
	// AddSample offers one (fan mode, slope, temperature error) observation
	AddSample(fanMode string, slope, temperatureError float64)

	// AddResponseEvent records the minutes between the last significant
	// slope change and a fan change
	AddResponseEvent(minutes float64)
}

// Controller is the per-zone fan-speed decision engine. It owns the timing
// and slope memory between ticks and is NOT safe for concurrent use; the
// calling agent must serialize ticks and manual overrides.
type Controller struct {
	settings Settings
	logger   *slog.Logger
	sink     SampleSink
	rules    []rule

	// fanModes is the ordered low-to-high intensity sequence. It may be
	// empty until the first climate context carries it.
	fanModes []string

	previousSlope              *float64
	thermalAcceleration        float64
	slopeAtLastChange          float64
	lastChangeTime             time.Time
	lastSlopeSignificantChange time.Time

	now func() time.Time
}

// NewController creates a decision engine with the given settings. fanModes
// may be nil; modes can be supplied later via SetFanModes once discovered.
func NewController(settings Settings, fanModes []string, sink SampleSink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		settings: settings,
		logger:   logger,
		sink:     sink,
		rules:    controlRules(),
		now:      time.Now,
	}
	c.SetFanModes(fanModes)

	// Backdate the change timer so the first tick is not interval-guarded
	start := c.now()
	c.lastChangeTime = start.Add(-time.Duration(settings.LimitTimeout * float64(time.Minute)))
	c.lastSlopeSignificantChange = start

	return c
}

// SetFanModes installs the ordered fan mode sequence, dropping duplicates
// while preserving first-seen order. An empty list leaves the controller in
// its not-configured state.
func (c *Controller) SetFanModes(modes []string) {
	unique := make([]string, 0, len(modes))
	for _, m := range modes {
		if m != "" && !slices.Contains(unique, m) {
			unique = append(unique, m)
		}
	}
	c.fanModes = unique
}

// FanModes returns the configured intensity sequence
func (c *Controller) FanModes() []string {
	return slices.Clone(c.fanModes)
}

// Compute runs one control tick and selects the next fan mode.
// The returned fan mode is always a member of the configured sequence
// (or the unchanged input when no sequence is configured yet).
func (c *Controller) Compute(currentTemp, targetTemp, slope float64, hvacMode Mode, currentFan string) *Decision {
	if len(c.fanModes) == 0 {
		return &Decision{FanMode: currentFan, Reason: ReasonNotConfigured}
	}

	now := c.now()
	effSlope := effectiveSlope(slope, hvacMode)

	// First observed slope seeds the memory so the first tick sees no change
	if c.previousSlope == nil {
		seed := slope
		c.previousSlope = &seed
		c.slopeAtLastChange = effSlope
	}

	minutesSinceChange := now.Sub(c.lastChangeTime).Minutes()
	projected := c.forecastTemperature(currentTemp, slope)
	temperatureError := signedError(currentTemp, targetTemp, hvacMode)
	projectedError := signedError(projected, targetTemp, hvacMode)
	slopeChange := math.Abs(slope-*c.previousSlope) > c.settings.SlopeThreshold

	currentIndex := slices.Index(c.fanModes, currentFan)
	if currentIndex < 0 {
		// Unknown or absent fan label defaults to the lowest intensity
		currentIndex = 0
	}

	state := &tickState{
		settings:             c.settings,
		temperatureError:     temperatureError,
		projectedTemperature: projected,
		projectedError:       projectedError,
		effectiveSlope:       effSlope,
		slopeAtLastChange:    c.slopeAtLastChange,
		minutesSinceChange:   minutesSinceChange,
		slopeChange:          slopeChange,
		intervalExpired:      minutesSinceChange >= c.settings.LimitTimeout,
		currentIndex:         currentIndex,
		maxIndex:             len(c.fanModes) - 1,
	}

	selected := proposal{index: currentIndex, reason: ReasonComfortStable}
	for _, r := range c.rules {
		if r.when(state) {
			selected = r.apply(state)
			c.logger.Debug("Control rule fired",
				"rule", r.name,
				"reason", selected.reason,
				"temperature_error", round2(temperatureError),
				"projected_error", round2(projectedError),
				"slope_change", slopeChange)
			break
		}
	}

	finalIndex := c.finalIndex(currentIndex, selected.index, minutesSinceChange, selected.force)
	targetFan := c.fanModes[finalIndex]

	c.updateMemory(now, targetFan, currentFan, slope, effSlope, slopeChange)

	if c.sink != nil {
		c.sink.AddSample(targetFan, slope, temperatureError)
	}

	return &Decision{
		FanMode:                   targetFan,
		ProjectedTemperature:      round2(projected),
		ProjectedTemperatureError: round2(projectedError),
		TemperatureError:          round2(temperatureError),
		MinutesSinceLastChange:    round1(minutesSinceChange),
		Reason:                    selected.reason,
	}
}

// ApplyManualOverride resets the change timer after an external fan change
// and reports the override decision
func (c *Controller) ApplyManualOverride(fanMode string) *Decision {
	c.lastChangeTime = c.now()

	return &Decision{
		FanMode:                fanMode,
		MinutesSinceLastChange: 0.0,
		Reason:                 ReasonManualOverride,
	}
}

// finalIndex applies the post-selection guards: the min-interval guard on
// non-forced paths and the single-step-down limiter on every path, forced
// included, to protect the actuator.
func (c *Controller) finalIndex(currentIndex, proposedIndex int, minutesSinceChange float64, force bool) int {
	if force {
		return clampStepDown(currentIndex, proposedIndex)
	}
	if minutesSinceChange < c.settings.MinInterval {
		return currentIndex
	}
	return clampStepDown(currentIndex, proposedIndex)
}

// clampStepDown limits downward transitions to one level per tick.
// Upward steps pass through unclamped.
func clampStepDown(currentIndex, proposedIndex int) int {
	if proposedIndex-currentIndex < -1 {
		return currentIndex - 1
	}
	return proposedIndex
}

// updateMemory records the tick outcome: change timing, the slope baseline
// for trend comparison, the response-time sample, and the significant-change
// marker.
func (c *Controller) updateMemory(now time.Time, targetFan, currentFan string, slope, effSlope float64, slopeChange bool) {
	changed := targetFan != currentFan

	if changed {
		responseMinutes := now.Sub(c.lastSlopeSignificantChange).Minutes()
		c.lastChangeTime = now
		c.slopeAtLastChange = effSlope
		if c.sink != nil {
			c.sink.AddResponseEvent(responseMinutes)
		}
	}

	if changed || slopeChange {
		rebased := slope
		c.previousSlope = &rebased
	}

	if slopeChange {
		c.lastSlopeSignificantChange = now
	}
}

// effectiveSlope normalizes the slope sign so that positive always means
// moving toward the target
func effectiveSlope(slope float64, mode Mode) float64 {
	if mode == ModeCool {
		return -slope
	}
	return slope
}

// signedError applies the heat/cool sign convention: positive means more
// heating or cooling is needed
func signedError(value, target float64, mode Mode) float64 {
	if mode == ModeCool {
		return value - target
	}
	return target - value
}
