package learning

import (
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Settings holds the calibration parameters for one zone
type Settings struct {
	// StagnationThreshold is the slope magnitude below which a sample tells
	// us nothing about the zone's thermal response
	StagnationThreshold float64

	// Window is the sample retention duration
	Window time.Duration

	// MinSamples is the observation count required before parameter
	// derivation is allowed
	MinSamples int
}

// DefaultSettings returns the static calibration defaults: a 7-day window
// and roughly 8 hours of 2-minute ticks before readiness.
func DefaultSettings() Settings {
	return Settings{
		StagnationThreshold: 0.15,
		Window:              168 * time.Hour,
		MinSamples:          240,
	}
}

// Validate checks that the parameters are positive
func (s Settings) Validate() error {
	if s.StagnationThreshold <= 0 {
		return fmt.Errorf("stagnation threshold must be positive, got %.3f", s.StagnationThreshold)
	}
	if s.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", s.Window)
	}
	if s.MinSamples <= 0 {
		return fmt.Errorf("min samples must be positive, got %d", s.MinSamples)
	}
	return nil
}

// SlopeSample is one admitted thermal observation
type SlopeSample struct {
	Timestamp time.Time `json:"timestamp"`
	FanMode   string    `json:"fan_mode"`
	Slope     float64   `json:"slope"`
}

// ResponseEvent records how many minutes the zone took to show a significant
// slope change after a fan change
type ResponseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Minutes   float64   `json:"minutes"`
}

// Learner accumulates per-zone thermal observations over a sliding window
// and derives advisory control parameters from them. It is NOT safe for
// concurrent use; the calling agent serializes access.
type Learner struct {
	settings Settings
	logger   *slog.Logger

	samples        []SlopeSample
	responseEvents []ResponseEvent
	stats          slopeStats

	// ready is sticky: once enough samples have been observed the learner
	// stays ready even if eviction later shrinks the window
	ready bool

	now func() time.Time
}

// NewLearner creates a calibration accumulator with the given settings
func NewLearner(settings Settings, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Learner{
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// AddSample offers one observation. Setpoint-change artifacts (large
// negative error) and stagnant readings are rejected; admitted samples enter
// the sliding window and the running statistics.
func (l *Learner) AddSample(fanMode string, slope, temperatureError float64) {
	if temperatureError < -1.0 {
		return
	}
	if math.Abs(slope) < l.settings.StagnationThreshold {
		return
	}

	now := l.now()
	l.samples = append(l.samples, SlopeSample{Timestamp: now, FanMode: fanMode, Slope: slope})

	if l.evict(now) {
		l.rebuildStats()
	} else {
		l.stats.add(math.Abs(slope))
	}

	if !l.ready && l.stats.count >= l.settings.MinSamples {
		l.ready = true
		l.logger.Info("Calibration ready",
			"samples", l.stats.count,
			"mean_slope", l.stats.mean)
	}
}

// AddResponseEvent records a fan-change response time
func (l *Learner) AddResponseEvent(minutes float64) {
	now := l.now()
	l.responseEvents = append(l.responseEvents, ResponseEvent{Timestamp: now, Minutes: minutes})

	cutoff := now.Add(-l.settings.Window)
	kept := l.responseEvents[:0]
	for _, e := range l.responseEvents {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.responseEvents = kept
}

// IsReady reports whether enough samples have ever been observed to derive
// parameters
func (l *Learner) IsReady() bool {
	return l.ready
}

// Progress reports the fraction of the readiness requirement observed so
// far, capped at 1.0
func (l *Learner) Progress() float64 {
	p := float64(l.stats.count) / float64(l.settings.MinSamples)
	return math.Min(p, 1.0)
}

// SampleCount returns the number of samples currently in the window
func (l *Learner) SampleCount() int {
	return l.stats.count
}

// Reset discards all accumulated state, including readiness
func (l *Learner) Reset() {
	l.samples = nil
	l.responseEvents = nil
	l.stats = slopeStats{}
	l.ready = false
}

// evict drops samples older than the window and reports whether any were
// removed
func (l *Learner) evict(now time.Time) bool {
	cutoff := now.Add(-l.settings.Window)

	firstKept := 0
	for firstKept < len(l.samples) && !l.samples[firstKept].Timestamp.After(cutoff) {
		firstKept++
	}
	if firstKept == 0 {
		return false
	}

	l.samples = append(l.samples[:0], l.samples[firstKept:]...)
	return true
}

func (l *Learner) rebuildStats() {
	magnitudes := make([]float64, len(l.samples))
	for i, s := range l.samples {
		magnitudes[i] = math.Abs(s.Slope)
	}
	l.stats.rebuild(magnitudes)
}
