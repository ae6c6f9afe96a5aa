package effort

import (
	"sync"
)

// Clamp range for tuned category weights: [0.5, 5.0]. Only weights are
// tuned; the medium and high base thresholds used by EffortOf are fixed.
const (
	WeightMin = 0.5
	WeightMax = 5.0
)

// Sample is one recorded outcome: the diagnostics that produced an
// effort estimate, how long the task actually took, and whether it
// succeeded.
type Sample struct {
	TaskID      string
	Diagnostics Diagnostics
	DurationMS  int64
	Success     bool
}

// Tuner accumulates Samples in a bounded ring buffer and, once a
// category has at least MinSamplesForTuning samples, proposes a bounded
// weight nudge for that category. It is disabled by default, matching
// the "MUST be disable-able by configuration" requirement.
type Tuner struct {
	Enabled             bool
	MinSamplesForTuning int
	Capacity            int

	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
}

// NewTuner returns a disabled Tuner with the reference default sample
// threshold (10) and a generous ring buffer capacity.
func NewTuner() *Tuner {
	return &Tuner{
		Enabled:             false,
		MinSamplesForTuning: 10,
		Capacity:            1000,
		samples:             make([]Sample, 0, 1000),
	}
}

// Record appends a sample to the ring buffer. It is a no-op when the
// tuner is disabled.
func (t *Tuner) Record(s Sample) {
	if !t.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < t.Capacity {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.next] = s
	t.next = (t.next + 1) % t.Capacity
	t.full = true
}

// Propose returns a weight delta per category: for each category with at
// least MinSamplesForTuning samples, it nudges the weight up when tasks
// tagged with that category tend to take longer than average and succeed
// less often (suggesting the category is under-weighted relative to its
// real difficulty), and down in the opposite case. The nudge per round is
// small (±0.1) and the caller is responsible for clamping the resulting
// weight to [WeightMin, WeightMax] before applying it.
func (t *Tuner) Propose() map[Category]float64 {
	t.mu.Lock()
	samples := append([]Sample(nil), t.samples...)
	t.mu.Unlock()

	if !t.Enabled || len(samples) == 0 {
		return nil
	}

	type agg struct {
		count        int
		totalSuccess int
		totalDur     int64
	}
	byCategory := make(map[Category]*agg)
	var grandDur int64
	var grandCount int

	for _, s := range samples {
		grandDur += s.DurationMS
		grandCount++
		for cat, score := range s.Diagnostics.CategoryScores {
			if score <= 0 {
				continue
			}
			a := byCategory[cat]
			if a == nil {
				a = &agg{}
				byCategory[cat] = a
			}
			a.count++
			a.totalDur += s.DurationMS
			if s.Success {
				a.totalSuccess++
			}
		}
	}

	if grandCount == 0 {
		return nil
	}
	avgDur := float64(grandDur) / float64(grandCount)

	deltas := make(map[Category]float64)
	for cat, a := range byCategory {
		if a.count < t.MinSamplesForTuning {
			continue
		}
		avgCatDur := float64(a.totalDur) / float64(a.count)
		successRate := float64(a.totalSuccess) / float64(a.count)

		delta := 0.0
		if avgCatDur > avgDur && successRate < 0.8 {
			delta = 0.1
		} else if avgCatDur <= avgDur && successRate >= 0.95 {
			delta = -0.1
		}
		if delta != 0 {
			deltas[cat] = delta
		}
	}
	return deltas
}

// Apply clamps and applies deltas (as returned by Propose) to the
// estimator's live weights.
func (es *Estimator) Apply(deltas map[Category]float64) {
	if es.weights == nil {
		es.weights = make(map[Category]float64, len(defaultWeights))
	}
	for cat, delta := range deltas {
		cur := es.weight(cat)
		next := cur + delta
		if next < WeightMin {
			next = WeightMin
		}
		if next > WeightMax {
			next = WeightMax
		}
		es.weights[cat] = next
	}
}
