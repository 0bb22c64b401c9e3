package fancontrol

import "time"

// Snapshot is the persistable slice of controller state. Everything else is
// either configuration or derived per tick.
type Snapshot struct {
	PreviousSlope              *float64  `json:"previous_slope,omitempty"`
	ThermalAcceleration        float64   `json:"thermal_acceleration"`
	SlopeAtLastChange          float64   `json:"slope_at_last_change"`
	LastChangeTime             time.Time `json:"last_change_time"`
	LastSlopeSignificantChange time.Time `json:"last_slope_significant_change"`
}

// Snapshot captures the controller's timing and slope memory
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		ThermalAcceleration:        c.thermalAcceleration,
		SlopeAtLastChange:          c.slopeAtLastChange,
		LastChangeTime:             c.lastChangeTime,
		LastSlopeSignificantChange: c.lastSlopeSignificantChange,
	}
	if c.previousSlope != nil {
		prev := *c.previousSlope
		s.PreviousSlope = &prev
	}
	return s
}

// Restore replaces the controller's timing and slope memory with a
// previously captured snapshot
func (c *Controller) Restore(s Snapshot) {
	c.previousSlope = nil
	if s.PreviousSlope != nil {
		prev := *s.PreviousSlope
		c.previousSlope = &prev
	}
	c.thermalAcceleration = s.ThermalAcceleration
	c.slopeAtLastChange = s.SlopeAtLastChange
	c.lastChangeTime = s.LastChangeTime
	c.lastSlopeSignificantChange = s.LastSlopeSignificantChange
}
