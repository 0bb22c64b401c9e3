package learning

import (
	"math"
	"time"
)

// Scaling bases and bounds for parameter derivation. The bases match the
// static control defaults so that a volatility factor of 1.0 reproduces
// them exactly.
const (
	deadbandBase  = 0.2
	softErrorBase = 0.3
	hardErrorBase = 0.6

	maxVolatilityFactor = 3.0

	responseMultiplier = 1.5
	minLimitTimeout    = 5.0
	maxLimitTimeout    = 30.0
	defaultResponseMin = 10.0
)

// ParameterSet is a derived, advisory set of control parameters. It is
// published for inspection and never applied automatically.
type ParameterSet struct {
	Deadband         float64   `json:"deadband"`
	SoftError        float64   `json:"soft_error"`
	HardError        float64   `json:"hard_error"`
	LimitTimeout     float64   `json:"limit_timeout"`
	VolatilityFactor float64   `json:"volatility_factor"`
	SampleCount      int       `json:"sample_count"`
	ComputedAt       time.Time `json:"computed_at"`
}

// ComputeOptimalParameters derives advisory control parameters from the
// accumulated statistics. The second return value is false until the
// learner is ready.
func (l *Learner) ComputeOptimalParameters() (ParameterSet, bool) {
	if !l.ready {
		return ParameterSet{}, false
	}

	volatility := l.stats.stdev() / math.Max(l.stats.mean, 0.1)
	volatility = math.Min(volatility, maxVolatilityFactor)

	params := ParameterSet{
		Deadband:         deadbandBase * volatility,
		SoftError:        softErrorBase * volatility,
		HardError:        hardErrorBase * volatility,
		LimitTimeout:     l.deriveLimitTimeout(),
		VolatilityFactor: volatility,
		SampleCount:      l.stats.count,
		ComputedAt:       l.now(),
	}

	l.logger.Debug("Derived control parameters",
		"volatility_factor", params.VolatilityFactor,
		"deadband", params.Deadband,
		"limit_timeout", params.LimitTimeout,
		"samples", params.SampleCount)

	return params, true
}

// deriveLimitTimeout scales the mean positive response time and clamps it to
// a practical range
func (l *Learner) deriveLimitTimeout() float64 {
	sum := 0.0
	count := 0
	for _, e := range l.responseEvents {
		if e.Minutes > 0 {
			sum += e.Minutes
			count++
		}
	}

	meanResponse := defaultResponseMin
	if count > 0 {
		meanResponse = sum / float64(count)
	}

	timeout := responseMultiplier * meanResponse
	return math.Min(math.Max(timeout, minLimitTimeout), maxLimitTimeout)
}
