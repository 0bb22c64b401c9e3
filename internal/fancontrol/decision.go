package fancontrol

import (
	"fmt"
	"math"
)

// Decision is the transient output of one control tick. A fresh value is
// produced per tick and never retained by the controller.
type Decision struct {
	FanMode                   string  `json:"fan_mode"`
	ProjectedTemperature      float64 `json:"projected_temperature"`
	ProjectedTemperatureError float64 `json:"projected_temperature_error"`
	TemperatureError          float64 `json:"temperature_error"`
	MinutesSinceLastChange    float64 `json:"minutes_since_last_change"`
	Reason                    string  `json:"reason"`
}

// Stable reason strings; tests and diagnostics match against these.
const (
	ReasonNotConfigured     = "Not configured: no fan modes available"
	ReasonManualOverride    = "Manual Override"
	ReasonPatience          = "Patience: Trend is improving"
	ReasonMaintenance       = "Maintenance: Slow drift detected"
	ReasonLowActive         = "Low Active: Observing inertia"
	ReasonOverTargetReduce  = "Over-target: Reducing speed"
	ReasonOverTargetObserve = "Over-target: Observing inertia"
	ReasonComfortDrift      = "Comfort: Slow drift detected"
	ReasonComfortStable     = "Comfort: Stable"
)

func reasonEmergency(temperatureError float64) string {
	return fmt.Sprintf("Emergency: High error (%.2f°)", temperatureError)
}

func reasonSetpointChange(temperatureError float64) string {
	return fmt.Sprintf("Setpoint change: Backing off (%.2f°)", temperatureError)
}

func reasonBraking(projectedTemperature float64) string {
	return fmt.Sprintf("Braking: Target overshoot predicted (%.2f°)", projectedTemperature)
}

func reasonRecovery(strong bool, projectedTemperature float64) string {
	intensity := "Soft"
	if strong {
		intensity = "Strong"
	}
	return fmt.Sprintf("%s recovery: Drop predicted to %.2f°", intensity, projectedTemperature)
}

func reasonWaiting(minutesSinceChange float64) string {
	return fmt.Sprintf("Waiting: Observing inertia (%d min)", int(math.Round(minutesSinceChange)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
