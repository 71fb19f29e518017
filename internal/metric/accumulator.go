package metric

import "github.com/tmsikora/uiquality/internal/schema"

// Accumulator holds everything one analysis run collects. A fresh
// Accumulator is created per run and threaded through the traversal by
// pointer; nothing in it outlives the run.
type Accumulator struct {
	samples      map[schema.Category][]float64
	Issues       []schema.IssueRecord
	Elements     []schema.NodeFinding
	NodesVisited int
	Truncated    bool
	Warnings     []string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{samples: make(map[schema.Category][]float64, len(schema.Categories))}
}

// AddSample appends one sample. Samples are append-only for the run.
func (a *Accumulator) AddSample(s schema.MetricSample) {
	a.samples[s.Category] = append(a.samples[s.Category], s.Value)
}

// Samples returns the recorded values for c in recording order.
func (a *Accumulator) Samples(c schema.Category) []float64 {
	return a.samples[c]
}

// Counts returns the number of samples per category, including zeros.
func (a *Accumulator) Counts() map[schema.Category]int {
	out := make(map[schema.Category]int, len(schema.Categories))
	for _, c := range schema.Categories {
		out[c] = len(a.samples[c])
	}
	return out
}

// Warn records a non-fatal condition for the report.
func (a *Accumulator) Warn(msg string) {
	a.Warnings = append(a.Warnings, msg)
}
