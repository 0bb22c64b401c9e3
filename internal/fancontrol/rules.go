package fancontrol

// tickState carries the derived quantities of one control tick through the
// rule table.
type tickState struct {
	settings Settings

	temperatureError     float64
	projectedTemperature float64
	projectedError       float64
	effectiveSlope       float64
	slopeAtLastChange    float64
	minutesSinceChange   float64
	slopeChange          bool
	intervalExpired      bool

	currentIndex int
	maxIndex     int
}

// proposal is a rule's outcome before the final guards are applied
type proposal struct {
	index  int
	force  bool
	reason string
}

// rule pairs a predicate with an action. Rules are evaluated top-down and
// the first matching predicate wins; the order of the table is part of the
// control contract.
type rule struct {
	name  string
	when  func(*tickState) bool
	apply func(*tickState) proposal
}

func controlRules() []rule {
	return []rule{
		{
			name: "emergency",
			when: func(t *tickState) bool {
				return t.temperatureError >= t.settings.HardError
			},
			apply: func(t *tickState) proposal {
				return proposal{index: t.maxIndex, force: true, reason: reasonEmergency(t.temperatureError)}
			},
		},
		{
			name: "setpoint-change",
			when: func(t *tickState) bool {
				return t.temperatureError < -1.0
			},
			apply: func(t *tickState) proposal {
				return proposal{index: 0, force: true, reason: reasonSetpointChange(t.temperatureError)}
			},
		},
		{
			name: "braking",
			when: func(t *tickState) bool {
				return t.projectedError < -t.settings.Deadband && t.slopeChange
			},
			apply: func(t *tickState) proposal {
				return proposal{index: stepDown(t.currentIndex), reason: reasonBraking(t.projectedTemperature)}
			},
		},
		{
			name: "recovery",
			when: func(t *tickState) bool {
				return t.temperatureError > t.settings.SoftError
			},
			apply: func(t *tickState) proposal {
				if !t.slopeChange && !t.intervalExpired {
					return proposal{index: t.currentIndex, reason: reasonWaiting(t.minutesSinceChange)}
				}
				if t.effectiveSlope > t.slopeAtLastChange+t.settings.SlopeThreshold {
					return proposal{index: t.currentIndex, reason: ReasonPatience}
				}
				strong := t.projectedError > t.settings.ProjectedErrorThreshold()
				return proposal{index: stepUp(t.currentIndex, t.maxIndex), reason: reasonRecovery(strong, t.projectedTemperature)}
			},
		},
		{
			name: "comfort-drift",
			when: func(t *tickState) bool {
				return t.temperatureError > 0
			},
			apply: func(t *tickState) proposal {
				drifting := t.effectiveSlope < -t.settings.SlopeThreshold ||
					t.projectedError > t.settings.ProjectedErrorThreshold()
				if drifting && (t.slopeChange || t.intervalExpired) {
					return proposal{index: stepUp(t.currentIndex, t.maxIndex), reason: ReasonMaintenance}
				}
				return proposal{index: t.currentIndex, reason: ReasonLowActive}
			},
		},
		{
			name: "over-target",
			when: func(t *tickState) bool {
				return t.temperatureError < -t.settings.Deadband
			},
			apply: func(t *tickState) proposal {
				if t.slopeChange || t.intervalExpired {
					return proposal{index: stepDown(t.currentIndex), reason: ReasonOverTargetReduce}
				}
				return proposal{index: t.currentIndex, reason: ReasonOverTargetObserve}
			},
		},
		{
			name: "stable-comfort",
			when: func(t *tickState) bool {
				return true
			},
			apply: func(t *tickState) proposal {
				if t.slopeChange && t.effectiveSlope < -t.settings.Deadband {
					return proposal{index: stepUp(t.currentIndex, t.maxIndex), reason: ReasonComfortDrift}
				}
				return proposal{index: t.currentIndex, reason: ReasonComfortStable}
			},
		},
	}
}

func stepUp(index, maxIndex int) int {
	if index >= maxIndex {
		return maxIndex
	}
	return index + 1
}

func stepDown(index int) int {
	if index <= 0 {
		return 0
	}
	return index - 1
}
