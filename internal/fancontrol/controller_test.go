package fancontrol

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

var testModes = []string{"low", "medium", "high", "turbo"}

// Mock sink that records forwarded samples and response events
type mockSink struct {
	samples []struct {
		fanMode string
		slope   float64
		tempErr float64
	}
	responses []float64
}

func (m *mockSink) AddSample(fanMode string, slope, temperatureError float64) {
	m.samples = append(m.samples, struct {
		fanMode string
		slope   float64
		tempErr float64
	}{fanMode, slope, temperatureError})
}

func (m *mockSink) AddResponseEvent(minutes float64) {
	m.responses = append(m.responses, minutes)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestController(sink SampleSink) (*Controller, *time.Time) {
	c := NewController(DefaultSettings(), testModes, sink, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	// Re-apply the backdated timers against the fixed clock
	c.lastChangeTime = clock.Add(-15 * time.Minute)
	c.lastSlopeSignificantChange = clock.Add(-15 * time.Minute)
	return c, &clock
}

func advance(clock *time.Time, d time.Duration) {
	*clock = clock.Add(d)
}

func TestCompute_EmergencyJumpsToMax(t *testing.T) {
	c, _ := newTestController(nil)

	// Heating: 1.2° below target is well past the hard threshold
	decision := c.Compute(19.8, 21.0, 0.1, ModeHeat, "low")

	if decision.FanMode != "turbo" {
		t.Errorf("Expected fan mode 'turbo', got '%s'", decision.FanMode)
	}
	if !strings.Contains(decision.Reason, "Emergency") {
		t.Errorf("Expected emergency reason, got '%s'", decision.Reason)
	}
	if decision.TemperatureError != 1.2 {
		t.Errorf("Expected temperature error 1.20, got %.2f", decision.TemperatureError)
	}
}

func TestCompute_EmergencyBypassesMinInterval(t *testing.T) {
	c, clock := newTestController(nil)

	// Prime the controller, then re-trigger 2 minutes after a change
	c.Compute(19.8, 21.0, 0.1, ModeHeat, "low")
	advance(clock, 2*time.Minute)

	decision := c.Compute(19.8, 21.0, 0.1, ModeHeat, "low")
	if decision.FanMode != "turbo" {
		t.Errorf("Expected emergency to bypass min interval, got '%s'", decision.FanMode)
	}
}

func TestCompute_SetpointDropForcesLowWithStepClamp(t *testing.T) {
	c, _ := newTestController(nil)

	// Cooling zone 1.5° below a raised setpoint: forced back-off targets the
	// lowest mode but the actuator guard allows only one step per tick
	decision := c.Compute(22.5, 24.0, 0.0, ModeCool, "turbo")

	if decision.FanMode != "high" {
		t.Errorf("Expected single-step clamp to 'high', got '%s'", decision.FanMode)
	}
	if !strings.Contains(decision.Reason, "Setpoint change") {
		t.Errorf("Expected setpoint change reason, got '%s'", decision.Reason)
	}
}

func TestCompute_StableComfortHoldsMode(t *testing.T) {
	c, _ := newTestController(nil)

	decision := c.Compute(21.0, 21.0, 0.0, ModeHeat, "medium")

	if decision.FanMode != "medium" {
		t.Errorf("Expected fan mode 'medium', got '%s'", decision.FanMode)
	}
	if decision.Reason != ReasonComfortStable {
		t.Errorf("Expected reason '%s', got '%s'", ReasonComfortStable, decision.Reason)
	}
}

func TestCompute_MinIntervalBlocksNonForcedStep(t *testing.T) {
	c, clock := newTestController(nil)

	// First tick triggers a recovery step up (interval expired at start)
	first := c.Compute(20.6, 21.0, 0.0, ModeHeat, "low")
	if first.FanMode != "medium" {
		t.Fatalf("Expected recovery step to 'medium', got '%s' (%s)", first.FanMode, first.Reason)
	}

	// Two minutes later the same error with a worsening slope proposes
	// another step, but the min-interval guard holds the mode
	advance(clock, 2*time.Minute)
	second := c.Compute(20.6, 21.0, -0.2, ModeHeat, "medium")
	if second.FanMode != "medium" {
		t.Errorf("Expected min-interval guard to hold 'medium', got '%s' (%s)", second.FanMode, second.Reason)
	}
}

func TestCompute_RecoveryWaitsInsideInterval(t *testing.T) {
	c, clock := newTestController(nil)

	first := c.Compute(20.6, 21.0, 0.0, ModeHeat, "low")
	if first.FanMode != "medium" {
		t.Fatalf("Expected recovery step to 'medium', got '%s'", first.FanMode)
	}

	// No slope change, interval not expired: the recovery rule itself waits
	advance(clock, 4*time.Minute)
	second := c.Compute(20.6, 21.0, 0.0, ModeHeat, "medium")
	if !strings.Contains(second.Reason, "Waiting") {
		t.Errorf("Expected waiting reason, got '%s'", second.Reason)
	}
	if second.FanMode != "medium" {
		t.Errorf("Expected fan mode 'medium', got '%s'", second.FanMode)
	}
}

func TestCompute_PatienceWhenTrendImproving(t *testing.T) {
	c, clock := newTestController(nil)

	// Change at slope 0.0, so slopeAtLastChange is 0.0
	first := c.Compute(20.6, 21.0, 0.0, ModeHeat, "low")
	if first.FanMode != "medium" {
		t.Fatalf("Expected recovery step to 'medium', got '%s'", first.FanMode)
	}

	// Slope improved well past the threshold relative to the last change;
	// the jump is itself a significant change, so the rule body runs
	advance(clock, 16*time.Minute)
	second := c.Compute(20.6, 21.0, 0.25, ModeHeat, "medium")
	if second.Reason != ReasonPatience {
		t.Errorf("Expected reason '%s', got '%s'", ReasonPatience, second.Reason)
	}
	if second.FanMode != "medium" {
		t.Errorf("Expected fan mode 'medium', got '%s'", second.FanMode)
	}
}

func TestCompute_BrakingOnPredictedOvershoot(t *testing.T) {
	c, clock := newTestController(nil)

	// Prime the slope memory near the target
	c.Compute(20.9, 21.0, 0.0, ModeHeat, "high")
	advance(clock, 2*time.Minute)

	// A sharp slope jump projects past the target: 21.0 + 1.2/6 + 0.25
	decision := c.Compute(21.0, 21.0, 1.2, ModeHeat, "high")

	if decision.FanMode != "medium" {
		t.Errorf("Expected braking step to 'medium', got '%s' (%s)", decision.FanMode, decision.Reason)
	}
	if !strings.Contains(decision.Reason, "Braking") {
		t.Errorf("Expected braking reason, got '%s'", decision.Reason)
	}
	if decision.ProjectedTemperature != 21.45 {
		t.Errorf("Expected projection 21.45, got %.2f", decision.ProjectedTemperature)
	}
}

func TestCompute_OverTargetReducesAfterTimeout(t *testing.T) {
	c, _ := newTestController(nil)

	// 0.4° past the target on a heating zone, interval already expired
	decision := c.Compute(21.4, 21.0, 0.0, ModeHeat, "high")

	if decision.FanMode != "medium" {
		t.Errorf("Expected fan mode 'medium', got '%s'", decision.FanMode)
	}
	if decision.Reason != ReasonOverTargetReduce {
		t.Errorf("Expected reason '%s', got '%s'", ReasonOverTargetReduce, decision.Reason)
	}
}

func TestCompute_OverTargetObservesInsideInterval(t *testing.T) {
	c, clock := newTestController(nil)

	c.Compute(21.4, 21.0, 0.0, ModeHeat, "high")
	advance(clock, 2*time.Minute)

	decision := c.Compute(21.4, 21.0, 0.0, ModeHeat, "medium")
	if decision.FanMode != "medium" {
		t.Errorf("Expected fan mode 'medium', got '%s'", decision.FanMode)
	}
	if decision.Reason != ReasonOverTargetObserve {
		t.Errorf("Expected reason '%s', got '%s'", ReasonOverTargetObserve, decision.Reason)
	}
}

func TestCompute_CoolingSignConvention(t *testing.T) {
	c, _ := newTestController(nil)

	// Cooling zone 1.0° above target is past the hard threshold
	decision := c.Compute(25.0, 24.0, 0.0, ModeCool, "low")

	if decision.FanMode != "turbo" {
		t.Errorf("Expected fan mode 'turbo', got '%s'", decision.FanMode)
	}
	if decision.TemperatureError != 1.0 {
		t.Errorf("Expected temperature error 1.00, got %.2f", decision.TemperatureError)
	}
}

func TestCompute_UnknownFanDefaultsToLowest(t *testing.T) {
	c, _ := newTestController(nil)

	decision := c.Compute(21.0, 21.0, 0.0, ModeHeat, "auto")

	if decision.FanMode != "low" {
		t.Errorf("Expected unknown fan to resolve to 'low', got '%s'", decision.FanMode)
	}
}

func TestCompute_NoModesConfigured(t *testing.T) {
	sink := &mockSink{}
	c := NewController(DefaultSettings(), nil, sink, testLogger())

	decision := c.Compute(19.0, 21.0, 0.5, ModeHeat, "low")

	if decision.Reason != ReasonNotConfigured {
		t.Errorf("Expected reason '%s', got '%s'", ReasonNotConfigured, decision.Reason)
	}
	if decision.FanMode != "low" {
		t.Errorf("Expected input fan mode echoed, got '%s'", decision.FanMode)
	}
	if len(sink.samples) != 0 {
		t.Errorf("Expected no samples while unconfigured, got %d", len(sink.samples))
	}
}

func TestCompute_ForwardsSampleEveryTick(t *testing.T) {
	sink := &mockSink{}
	c, clock := newTestController(sink)

	c.Compute(21.0, 21.0, 0.0, ModeHeat, "medium")
	advance(clock, 2*time.Minute)
	c.Compute(20.95, 21.0, -0.05, ModeHeat, "medium")

	if len(sink.samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(sink.samples))
	}
	if sink.samples[0].fanMode != "medium" {
		t.Errorf("Expected sample fan mode 'medium', got '%s'", sink.samples[0].fanMode)
	}
	if sink.samples[1].slope != -0.05 {
		t.Errorf("Expected raw slope -0.05, got %f", sink.samples[1].slope)
	}
}

func TestCompute_ResponseEventOnFanChange(t *testing.T) {
	sink := &mockSink{}
	c, clock := newTestController(sink)

	// Prime the slope memory, then a significant slope change advances the
	// response marker
	c.Compute(21.0, 21.0, 0.0, ModeHeat, "medium")
	advance(clock, 2*time.Minute)
	c.Compute(21.0, 21.0, 0.3, ModeHeat, "medium")

	// 8 minutes later an emergency changes the fan; the response event
	// measures from the marker
	advance(clock, 8*time.Minute)
	c.Compute(20.0, 21.0, 0.3, ModeHeat, "medium")

	if len(sink.responses) != 1 {
		t.Fatalf("Expected 1 response event, got %d", len(sink.responses))
	}
	if math.Abs(sink.responses[0]-8.0) > 0.01 {
		t.Errorf("Expected response time of 8 minutes, got %f", sink.responses[0])
	}
}

func TestCompute_SingleStepDownOnEveryPath(t *testing.T) {
	c, clock := newTestController(nil)

	// Walk through repeated forced back-offs: turbo never drops more than
	// one level per tick
	current := "turbo"
	expected := []string{"high", "medium", "low", "low"}
	for i, want := range expected {
		decision := c.Compute(22.5, 24.0, 0.0, ModeCool, current)
		if decision.FanMode != want {
			t.Fatalf("Tick %d: expected '%s', got '%s'", i, want, decision.FanMode)
		}
		current = decision.FanMode
		advance(clock, 2*time.Minute)
	}
}

func TestApplyManualOverride(t *testing.T) {
	c, clock := newTestController(nil)

	decision := c.ApplyManualOverride("high")

	if decision.FanMode != "high" {
		t.Errorf("Expected fan mode 'high', got '%s'", decision.FanMode)
	}
	if decision.Reason != ReasonManualOverride {
		t.Errorf("Expected reason '%s', got '%s'", ReasonManualOverride, decision.Reason)
	}

	// The override reset the change timer, so a recovery 2 minutes later
	// observes instead of stepping
	advance(clock, 2*time.Minute)
	next := c.Compute(20.6, 21.0, 0.3, ModeHeat, "high")
	if next.FanMode != "high" {
		t.Errorf("Expected change timer to hold after override, got '%s'", next.FanMode)
	}
}

func TestForecastTemperature_ParabolicProjection(t *testing.T) {
	c, _ := newTestController(nil)

	// Seed the previous slope at zero, then observe 0.6°/h: the instant
	// acceleration of 18°/h² is halved by the filter, adding
	// 0.5·9·(1/6)² = 0.125° on top of the 0.1° linear term
	prev := 0.0
	c.previousSlope = &prev

	projected := c.forecastTemperature(20.0, 0.6)

	if math.Abs(projected-20.225) > 1e-9 {
		t.Errorf("Expected projection 20.225, got %f", projected)
	}
	if math.Abs(c.thermalAcceleration-9.0) > 1e-9 {
		t.Errorf("Expected filtered acceleration 9.0, got %f", c.thermalAcceleration)
	}
}

func TestForecastTemperature_FilterStatePersists(t *testing.T) {
	c, _ := newTestController(nil)
	prev := 0.0
	c.previousSlope = &prev

	c.forecastTemperature(20.0, 0.6)
	// Slope memory caught up: zero instant acceleration decays the filter
	*c.previousSlope = 0.6
	c.forecastTemperature(20.1, 0.6)

	if math.Abs(c.thermalAcceleration-4.5) > 1e-9 {
		t.Errorf("Expected decayed acceleration 4.5, got %f", c.thermalAcceleration)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c, clock := newTestController(nil)

	c.Compute(20.6, 21.0, 0.2, ModeHeat, "low")
	advance(clock, 5*time.Minute)
	c.Compute(20.7, 21.0, 0.4, ModeHeat, "medium")

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Snapshot
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	fresh := NewController(DefaultSettings(), testModes, nil, testLogger())
	fresh.Restore(restored)

	if fresh.previousSlope == nil || *fresh.previousSlope != *c.previousSlope {
		t.Errorf("Previous slope not restored")
	}
	if fresh.thermalAcceleration != c.thermalAcceleration {
		t.Errorf("Thermal acceleration not restored")
	}
	if !fresh.lastChangeTime.Equal(c.lastChangeTime) {
		t.Errorf("Last change time not restored")
	}
	if !fresh.lastSlopeSignificantChange.Equal(c.lastSlopeSignificantChange) {
		t.Errorf("Slope change marker not restored")
	}
}

func TestSetFanModes_DropsDuplicates(t *testing.T) {
	c, _ := newTestController(nil)

	c.SetFanModes([]string{"low", "high", "low", "", "turbo"})

	modes := c.FanModes()
	if len(modes) != 3 {
		t.Fatalf("Expected 3 modes, got %d: %v", len(modes), modes)
	}
	if modes[0] != "low" || modes[1] != "high" || modes[2] != "turbo" {
		t.Errorf("Unexpected mode order: %v", modes)
	}
}

func TestSettings_Validate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("Default settings should validate, got %v", err)
	}

	bad := DefaultSettings()
	bad.HardError = bad.SoftError
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected error for hard <= soft")
	}

	bad = DefaultSettings()
	bad.LimitTimeout = bad.MinInterval - 1
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected error for limit timeout below min interval")
	}
}
