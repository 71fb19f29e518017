// Package engine runs one complete analysis: walk the tree, aggregate the
// samples and render the report. It is the single entry point hosts call.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tmsikora/uiquality/internal/metric"
	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/render"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/score"
	"github.com/tmsikora/uiquality/internal/uitree"
	"github.com/tmsikora/uiquality/internal/walker"
)

// ErrRunInProgress is returned when Run is called while another run on the
// same Engine is still active.
var ErrRunInProgress = walker.ErrRunInProgress

// ErrInvalidDisplay is returned for display metrics the calculators cannot use.
var ErrInvalidDisplay = errors.New("engine: invalid display metrics")

// newRunID is a package-level variable so tests can make run IDs deterministic.
var newRunID = uuid.NewString

// Options configures an Engine.
type Options struct {
	Profile  profile.Profile
	MaxDepth int
	Logger   *slog.Logger
}

// Engine analyzes one tree at a time.
type Engine struct {
	mu     sync.Mutex
	prof   profile.Profile
	walker *walker.Walker
	log    *slog.Logger
}

// New validates opts and returns an Engine. A zero Profile selects the
// default profile.
func New(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	prof := opts.Profile
	if prof.Name == "" {
		p, err := profile.Load(profile.DefaultName)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		prof = p
	}
	if err := prof.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if err := score.Validate(prof.Coefficients); err != nil {
		return nil, fmt.Errorf("engine: profile %s: %w", prof.Name, err)
	}
	prof.Coefficients = prof.Coefficients.Clone()

	return &Engine{
		prof:   prof,
		walker: walker.New(walker.Options{MaxDepth: opts.MaxDepth, Logger: opts.Logger}),
		log:    opts.Logger,
	}, nil
}

// Profile returns the profile the engine scores against.
func (e *Engine) Profile() profile.Profile {
	return e.prof
}

func validateDisplay(d uitree.Display) error {
	if d.Density <= 0 {
		return fmt.Errorf("%w: density %v must be > 0", ErrInvalidDisplay, d.Density)
	}
	if d.WidthPx <= 0 || d.HeightPx <= 0 {
		return fmt.Errorf("%w: screen %dx%d px", ErrInvalidDisplay, d.WidthPx, d.HeightPx)
	}
	return nil
}

// Run analyzes root against display and returns the complete report. A nil
// root yields a valid report with no elements. Concurrent calls are rejected
// with ErrRunInProgress.
func (e *Engine) Run(root *uitree.Node, display uitree.Display) (*schema.ScoreReport, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	if root != nil {
		if err := validateDisplay(display); err != nil {
			return nil, err
		}
	}

	ev := metric.Evaluator{Display: display, Thresholds: e.prof.Thresholds}
	acc, err := e.walker.Walk(root, ev)
	if err != nil {
		return nil, fmt.Errorf("engine: walk: %w", err)
	}

	res := score.Aggregate(acc, e.prof.Coefficients)
	report := &schema.ScoreReport{
		RunID:                newRunID(),
		Profile:              e.prof.Name,
		NodesVisited:         acc.NodesVisited,
		Truncated:            acc.Truncated,
		CategoryAverages:     res.Averages,
		CategoryMinima:       res.Minima,
		SampleCounts:         res.Counts,
		Coefficients:         res.Coefficients,
		WeightedAverageScore: res.WeightedAverage,
		WeightedMinimumScore: res.WeightedMinimum,
		Issues:               acc.Issues,
		Elements:             acc.Elements,
		Warnings:             acc.Warnings,
	}
	report.Narrative = render.RenderNarrative(report)
	report.Tabular, err = render.RenderTabular(report)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.log.Info("engine: analysis complete",
		"run_id", report.RunID,
		"profile", report.Profile,
		"nodes", report.NodesVisited,
		"issues", len(report.Issues),
		"score", report.WeightedAverageScore,
		"min_score", report.WeightedMinimumScore,
		"truncated", report.Truncated)
	return report, nil
}
