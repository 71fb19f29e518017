// Package score provides the deterministic aggregation of per-node samples
// into category scores and the final weighted UI quality scores.
package score

import (
	"fmt"
	"math"

	"github.com/tmsikora/uiquality/internal/metric"
	"github.com/tmsikora/uiquality/internal/schema"
)

// sumTolerance is the allowed deviation of a coefficient vector from 1.0.
const sumTolerance = 1e-6

// Result is the outcome of aggregating one run.
type Result struct {
	Averages     map[schema.Category]float64
	Minima       map[schema.Category]float64
	Counts       map[schema.Category]int
	Coefficients schema.Coefficients
	// WeightedAverage is Σ average_i * weight_i.
	WeightedAverage float64
	// WeightedMinimum is Σ minimum_i * weight_i, the pessimistic score.
	WeightedMinimum float64
}

// Validate checks that c has a non-negative weight for every category and
// that the weights sum to 1.
func Validate(c schema.Coefficients) error {
	for _, cat := range schema.Categories {
		w, ok := c[cat]
		if !ok {
			return fmt.Errorf("score: coefficient for %s is missing", cat)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("score: coefficient for %s is %v, must be >= 0", cat, w)
		}
	}
	if len(c) != len(schema.Categories) {
		return fmt.Errorf("score: %d coefficients given, want %d", len(c), len(schema.Categories))
	}
	if s := c.Sum(); math.Abs(s-1) > sumTolerance {
		return fmt.Errorf("score: coefficients sum to %.6f, want 1", s)
	}
	return nil
}

// Average returns the mean of values, or 1.0 when there are none: a category
// with no applicable elements is not evidence of a defect.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 1.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Minimum returns the smallest of values, or 1.0 when there are none.
func Minimum(values []float64) float64 {
	if len(values) == 0 {
		return 1.0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = min(m, v)
	}
	return m
}

// Redistribute returns the weights to use for a run. It always starts from
// defaults, which are not modified. The combined weight of categories with
// no samples is split equally across the categories that have samples, and
// the empty categories get 0. With a single empty category this gives each
// of the other four w_empty/4. If every category is empty the defaults are
// returned unchanged.
func Redistribute(defaults schema.Coefficients, counts map[schema.Category]int) schema.Coefficients {
	out := defaults.Clone()
	var freed float64
	var filled []schema.Category
	for _, c := range schema.Categories {
		if counts[c] == 0 {
			freed += out[c]
			continue
		}
		filled = append(filled, c)
	}
	if len(filled) == 0 || freed == 0 {
		return out
	}
	share := freed / float64(len(filled))
	for _, c := range schema.Categories {
		if counts[c] == 0 {
			out[c] = 0
		} else {
			out[c] += share
		}
	}
	return out
}

// Aggregate reduces the accumulator's samples into a Result. It does not
// modify acc or defaults, so calling it twice yields identical results.
func Aggregate(acc *metric.Accumulator, defaults schema.Coefficients) Result {
	res := Result{
		Averages: make(map[schema.Category]float64, len(schema.Categories)),
		Minima:   make(map[schema.Category]float64, len(schema.Categories)),
		Counts:   acc.Counts(),
	}
	for _, c := range schema.Categories {
		values := acc.Samples(c)
		res.Averages[c] = Average(values)
		res.Minima[c] = Minimum(values)
	}
	res.Coefficients = Redistribute(defaults, res.Counts)
	for _, c := range schema.Categories {
		w := res.Coefficients[c]
		res.WeightedAverage += res.Averages[c] * w
		res.WeightedMinimum += res.Minima[c] * w
	}
	res.WeightedAverage = clamp01(res.WeightedAverage)
	res.WeightedMinimum = clamp01(res.WeightedMinimum)
	return res
}

// clamp01 absorbs floating-point drift at the ends of [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
