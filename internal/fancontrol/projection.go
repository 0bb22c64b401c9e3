package fancontrol

import "time"

// Projection constants. The filter weight is tuned for a roughly two-tick
// settling window at the 2-minute control period.
const (
	projectionHorizon = 10 * time.Minute
	accelFilterAlpha  = 0.5
)

// forecastTemperature estimates the temperature at the projection horizon
// using a parabolic model: current position, current slope, and a low-pass
// filtered slope acceleration. The filter state persists across ticks and
// survives snapshot round-trips.
func (c *Controller) forecastTemperature(currentTemp, slope float64) float64 {
	dtHours := c.settings.TickInterval.Hours()

	dSlope := 0.0
	if c.previousSlope != nil {
		dSlope = slope - *c.previousSlope
	}
	instantAccel := dSlope / dtHours // °/h²

	c.thermalAcceleration = accelFilterAlpha*instantAccel + (1-accelFilterAlpha)*c.thermalAcceleration

	horizon := projectionHorizon.Hours()
	return currentTemp + slope*horizon + 0.5*c.thermalAcceleration*horizon*horizon
}
