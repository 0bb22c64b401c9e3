package learning

import "math"

// slopeStats tracks count, mean, sum of squared deviations, and max over the
// admitted slope magnitudes in a single pass (Welford's update).
type slopeStats struct {
	count int
	mean  float64
	m2    float64
	max   float64
}

func (s *slopeStats) add(x float64) {
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (x - s.mean)
	if x > s.max {
		s.max = x
	}
}

// rebuild recomputes the statistics from scratch. Welford's update has no
// numerically stable removal, so window eviction always goes through here.
func (s *slopeStats) rebuild(magnitudes []float64) {
	*s = slopeStats{}
	for _, x := range magnitudes {
		s.add(x)
	}
}

// variance floors at 0.01 when there are not enough samples to estimate it
func (s *slopeStats) variance() float64 {
	if s.count <= 1 {
		return 0.01
	}
	return s.m2 / float64(s.count-1)
}

func (s *slopeStats) stdev() float64 {
	return math.Sqrt(s.variance())
}
