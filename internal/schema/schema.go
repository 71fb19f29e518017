// Package schema defines all canonical data types for an analysis run and its report.
package schema

import "github.com/tmsikora/uiquality/internal/uitree"

// Category is one of the five scored defect dimensions.
type Category string

const (
	CategoryTouchArea          Category = "TouchArea"
	CategoryElementSpacing     Category = "ElementSpacing"
	CategoryEdgeSpacing        Category = "EdgeSpacing"
	CategoryContentDescription Category = "ContentDescription"
	CategoryHintText           Category = "HintText"
)

// Categories lists every scored category in report column order.
var Categories = []Category{
	CategoryTouchArea,
	CategoryElementSpacing,
	CategoryEdgeSpacing,
	CategoryContentDescription,
	CategoryHintText,
}

// MetricSample is one normalized measurement; Value is in [0,1] with 1.0
// meaning fully compliant.
type MetricSample struct {
	Category Category `json:"category"`
	Value    float64  `json:"value"`
}

// IssueRecord is one actionable finding on one element. Category is empty
// for qualitative findings that carry no score.
type IssueRecord struct {
	ElementKind uitree.Kind `json:"element_kind"`
	ElementID   string      `json:"element_id"`
	Category    Category    `json:"category,omitempty"`
	Message     string      `json:"message"`
	Suggestion  string      `json:"suggestion"`
}

// NodeFinding is the per-node result for one analyzed element: its issues
// (possibly none) and its sample for every category that applies to its kind.
type NodeFinding struct {
	Kind   uitree.Kind          `json:"kind"`
	ID     string               `json:"id"`
	Issues []IssueRecord        `json:"issues"`
	Scores map[Category]float64 `json:"scores,omitempty"`
}

// Coefficients maps each category to its weight. Weights sum to 1.0.
type Coefficients map[Category]float64

// Clone returns an independent copy.
func (c Coefficients) Clone() Coefficients {
	out := make(Coefficients, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Sum returns the total weight.
func (c Coefficients) Sum() float64 {
	var s float64
	for _, cat := range Categories {
		s += c[cat]
	}
	return s
}

// ScoreReport is the complete output of one analysis run.
type ScoreReport struct {
	RunID        string `json:"run_id"`
	Profile      string `json:"profile"`
	NodesVisited int    `json:"nodes_visited"`
	Truncated    bool   `json:"truncated"`

	CategoryAverages     map[Category]float64 `json:"category_averages"`
	CategoryMinima       map[Category]float64 `json:"category_minima"`
	SampleCounts         map[Category]int     `json:"sample_counts"`
	Coefficients         Coefficients         `json:"coefficients"`
	WeightedAverageScore float64              `json:"weighted_average_score"`
	WeightedMinimumScore float64              `json:"weighted_minimum_score"`

	Issues   []IssueRecord `json:"issues"`
	Elements []NodeFinding `json:"elements"`
	Warnings []string      `json:"warnings,omitempty"`

	Narrative string `json:"narrative"`
	Tabular   string `json:"tabular"`
}

// HasIssues reports whether the node produced at least one issue.
func (f NodeFinding) HasIssues() bool {
	return len(f.Issues) > 0
}

// Findings returns the analyzed elements that have at least one issue, in
// visit order.
func (r *ScoreReport) Findings() []NodeFinding {
	var out []NodeFinding
	for _, e := range r.Elements {
		if e.HasIssues() {
			out = append(out, e)
		}
	}
	return out
}

// RemediationStep is one prioritized fix proposed by the advisor.
type RemediationStep struct {
	Priority  int      `json:"priority"`
	ElementID string   `json:"element_id"`
	Category  Category `json:"category,omitempty"`
	Action    string   `json:"action"`
	Rationale string   `json:"rationale"`
}

// RemediationPlan is the advisor's ordered fix list for one report.
type RemediationPlan struct {
	Summary string            `json:"summary"`
	Steps   []RemediationStep `json:"steps"`
	Model   string            `json:"model,omitempty"`
}
