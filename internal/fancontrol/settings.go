package fancontrol

import (
	"fmt"
	"time"
)

// Mode is the HVAC operating mode the fan assists
type Mode string

const (
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
)

// Settings holds the validated control parameters for one zone.
// Temperatures are in degrees, slopes in degrees per hour, intervals in minutes.
type Settings struct {
	// Deadband is the tolerance zone around the target treated as close enough
	Deadband float64

	// MinInterval is the minimum number of minutes between non-forced fan changes
	MinInterval float64

	// SoftError is the error magnitude above which recovery behavior starts
	SoftError float64

	// HardError is the error magnitude treated as an emergency
	HardError float64

	// LimitTimeout is the number of minutes after which a change interval is
	// considered expired even without a significant slope change
	LimitTimeout float64

	// SlopeThreshold is the slope delta considered a significant change
	SlopeThreshold float64

	// TickInterval is the control loop period, used to derive the
	// acceleration filter time base
	TickInterval time.Duration
}

// DefaultSettings returns the static control defaults
func DefaultSettings() Settings {
	return Settings{
		Deadband:       0.2,
		MinInterval:    10,
		SoftError:      0.3,
		HardError:      0.6,
		LimitTimeout:   15,
		SlopeThreshold: 0.1,
		TickInterval:   2 * time.Minute,
	}
}

// Validate checks that the parameters are positive and correctly ordered
func (s Settings) Validate() error {
	if s.Deadband <= 0 {
		return fmt.Errorf("deadband must be positive, got %.3f", s.Deadband)
	}
	if s.SoftError < s.Deadband {
		return fmt.Errorf("soft error (%.3f) must not be below deadband (%.3f)", s.SoftError, s.Deadband)
	}
	if s.HardError <= s.SoftError {
		return fmt.Errorf("hard error (%.3f) must exceed soft error (%.3f)", s.HardError, s.SoftError)
	}
	if s.MinInterval <= 0 {
		return fmt.Errorf("min interval must be positive, got %.1f", s.MinInterval)
	}
	if s.LimitTimeout < s.MinInterval {
		return fmt.Errorf("limit timeout (%.1f) must not be below min interval (%.1f)", s.LimitTimeout, s.MinInterval)
	}
	if s.SlopeThreshold <= 0 {
		return fmt.Errorf("slope threshold must be positive, got %.3f", s.SlopeThreshold)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", s.TickInterval)
	}
	return nil
}

// ProjectedErrorThreshold is the midpoint of the soft and hard thresholds,
// separating soft from strong recovery
func (s Settings) ProjectedErrorThreshold() float64 {
	return (s.SoftError + s.HardError) / 2
}
