// Package walker performs the depth-first traversal of a UI tree, handing
// every node to the metric calculators and collecting the run's results.
package walker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tmsikora/uiquality/internal/metric"
	"github.com/tmsikora/uiquality/internal/uitree"
)

// DefaultMaxDepth bounds recursion for malformed trees.
const DefaultMaxDepth = 512

// ErrRunInProgress is returned when Walk is called while another walk on the
// same Walker has not finished. Runs are rejected, not queued.
var ErrRunInProgress = errors.New("walker: run already in progress")

// State is the walker's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWalking
)

func (s State) String() string {
	if s == StateWalking {
		return "walking"
	}
	return "idle"
}

// TraversalError reports a tree that cannot be walked safely: a node reached
// twice through parent/child links.
type TraversalError struct {
	NodeID string
	Depth  int
	Reason string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("walker: %s at node %s (depth %d)", e.Reason, e.NodeID, e.Depth)
}

// Options configures a Walker.
type Options struct {
	// MaxDepth is the deepest level visited; the root is depth 0. Deeper
	// subtrees are skipped and the run is marked truncated. Default 512.
	MaxDepth int
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Walker walks one tree at a time.
type Walker struct {
	opts  Options
	state atomic.Int32
}

// New returns an idle Walker.
func New(opts Options) *Walker {
	opts.defaults()
	return &Walker{opts: opts}
}

// State returns the current lifecycle state.
func (w *Walker) State() State {
	return State(w.state.Load())
}

// Walk visits root and its descendants in pre-order and returns a fresh
// accumulator holding the run's samples and issues. A nil root is a valid
// empty run. A cyclic tree yields a *TraversalError.
func (w *Walker) Walk(root *uitree.Node, ev metric.Evaluator) (*metric.Accumulator, error) {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateWalking)) {
		return nil, ErrRunInProgress
	}
	defer w.state.Store(int32(StateIdle))

	acc := metric.NewAccumulator()
	if root == nil {
		w.opts.Logger.Debug("walker: nil root, nothing to analyze")
		return acc, nil
	}

	r := &run{
		opts:    w.opts,
		ev:      ev,
		acc:     acc,
		visited: make(map[*uitree.Node]struct{}),
	}
	if err := r.visit(root, 0); err != nil {
		return nil, err
	}
	return acc, nil
}

// run is the per-walk traversal state.
type run struct {
	opts    Options
	ev      metric.Evaluator
	acc     *metric.Accumulator
	visited map[*uitree.Node]struct{}
}

func (r *run) visit(n *uitree.Node, depth int) error {
	if depth > r.opts.MaxDepth {
		if !r.acc.Truncated {
			r.acc.Truncated = true
			msg := fmt.Sprintf("tree deeper than %d levels; subtree at node %s skipped", r.opts.MaxDepth, n.Identifier())
			r.acc.Warn(msg)
			r.opts.Logger.Warn("walker: depth cap reached", "max_depth", r.opts.MaxDepth, "node", n.Identifier())
		}
		return nil
	}
	if _, seen := r.visited[n]; seen {
		return &TraversalError{NodeID: n.Identifier(), Depth: depth, Reason: "cycle or shared node detected"}
	}
	r.visited[n] = struct{}{}
	r.acc.NodesVisited++

	before := len(r.acc.Elements)
	r.ev.Evaluate(n, r.acc)
	if len(r.acc.Elements) > before {
		e := r.acc.Elements[before]
		r.opts.Logger.Debug("walker: analyzed node",
			"kind", e.Kind, "id", e.ID, "depth", depth, "scores", e.Scores, "issues", len(e.Issues))
	}

	for _, c := range n.Children {
		if c == nil {
			continue
		}
		if err := r.visit(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
