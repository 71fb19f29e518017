// Package metric extracts per-node measurements from the UI tree and
// normalizes them to [0,1] samples. Calculators read nodes and append to an
// Accumulator; they never modify the tree.
package metric

import (
	"fmt"
	"strings"

	"github.com/tmsikora/uiquality/internal/geometry"
	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/uitree"
)

// applicable maps each kind to the categories scored for it, in the order
// the calculators run.
var applicable = map[uitree.Kind][]schema.Category{
	uitree.KindButton: {
		schema.CategoryTouchArea, schema.CategoryElementSpacing, schema.CategoryEdgeSpacing,
	},
	uitree.KindImageButton: {
		schema.CategoryTouchArea, schema.CategoryElementSpacing, schema.CategoryEdgeSpacing,
		schema.CategoryContentDescription,
	},
	uitree.KindCheckBox: {
		schema.CategoryContentDescription, schema.CategoryElementSpacing, schema.CategoryEdgeSpacing,
	},
	uitree.KindImageView: {schema.CategoryContentDescription},
	uitree.KindEditText:  {schema.CategoryHintText},
}

// Applicable returns the categories scored for kind. TextView and Other
// return nil: TextView only gets the qualitative text check.
func Applicable(kind uitree.Kind) []schema.Category {
	return applicable[kind]
}

// AppliesTo reports whether category c is scored for kind.
func AppliesTo(kind uitree.Kind, c schema.Category) bool {
	for _, x := range applicable[kind] {
		if x == c {
			return true
		}
	}
	return false
}

// Analyzed reports whether the walker records an element entry for kind.
func Analyzed(kind uitree.Kind) bool {
	return kind != uitree.KindOther
}

// Evaluator runs the calculators against one display and one set of thresholds.
type Evaluator struct {
	Display    uitree.Display
	Thresholds profile.Thresholds
}

// Evaluate dispatches n to every calculator that applies to its kind and
// records the resulting samples, issues and element entry in acc.
func (e Evaluator) Evaluate(n *uitree.Node, acc *Accumulator) {
	if n == nil || !Analyzed(n.Kind) {
		return
	}
	finding := schema.NodeFinding{Kind: n.Kind, ID: n.Identifier()}

	if n.Kind == uitree.KindTextView {
		if issue := TextPresence(n); issue != nil {
			finding.Issues = append(finding.Issues, *issue)
		}
	}

	for _, c := range Applicable(n.Kind) {
		var (
			value float64
			issue *schema.IssueRecord
		)
		switch c {
		case schema.CategoryTouchArea:
			value, issue = TouchArea(n, e.Display, e.Thresholds)
		case schema.CategoryElementSpacing:
			value, issue = ElementSpacing(n, e.Display, e.Thresholds)
		case schema.CategoryEdgeSpacing:
			value, issue = EdgeSpacing(n, e.Display, e.Thresholds)
		case schema.CategoryContentDescription:
			value, issue = ContentDescription(n)
		case schema.CategoryHintText:
			value, issue = HintText(n)
		default:
			continue
		}
		acc.AddSample(schema.MetricSample{Category: c, Value: value})
		if finding.Scores == nil {
			finding.Scores = make(map[schema.Category]float64, 4)
		}
		finding.Scores[c] = value
		if issue != nil {
			finding.Issues = append(finding.Issues, *issue)
		}
	}

	acc.Issues = append(acc.Issues, finding.Issues...)
	acc.Elements = append(acc.Elements, finding)
}

func newIssue(n *uitree.Node, c schema.Category, msg, suggestion string) *schema.IssueRecord {
	return &schema.IssueRecord{
		ElementKind: n.Kind,
		ElementID:   n.Identifier(),
		Category:    c,
		Message:     msg,
		Suggestion:  suggestion,
	}
}

// TouchArea scores the node's touch target. Both dimensions at or above the
// threshold score 1.0; otherwise the score is (w*h)/(T*T), capped at 1.0.
// A wide but short target therefore keeps partial credit for its area.
func TouchArea(n *uitree.Node, d uitree.Display, th profile.Thresholds) (float64, *schema.IssueRecord) {
	w := geometry.ToDP(float64(n.Bounds.Width()), d.Density)
	h := geometry.ToDP(float64(n.Bounds.Height()), d.Density)
	t := th.TouchTargetDP
	if w >= t && h >= t {
		return 1.0, nil
	}
	score := min(1.0, (w*h)/(t*t))
	return score, newIssue(n, schema.CategoryTouchArea,
		"Touch target is too small.",
		fmt.Sprintf("Increase the button size to at least %gx%g dp.", t, t))
}

// ElementSpacing scores the clearance between n and each of its siblings and
// keeps the worst. A node without siblings scores 1.0.
func ElementSpacing(n *uitree.Node, d uitree.Display, th profile.Thresholds) (float64, *schema.IssueRecord) {
	siblings := n.Siblings()
	if len(siblings) == 0 {
		return 1.0, nil
	}
	s := th.ElementSpacingDP
	worst, worstGap := 1.0, 0.0
	for i, sib := range siblings {
		gap := geometry.ToDP(float64(geometry.GapBetween(n.Bounds, sib.Bounds)), d.Density)
		score := 1.0
		if gap < s {
			score = gap / s
		}
		if i == 0 || score < worst {
			worst, worstGap = score, gap
		}
	}
	if worst >= 1.0 {
		return 1.0, nil
	}
	return worst, newIssue(n, schema.CategoryElementSpacing,
		fmt.Sprintf("Insufficient spacing between elements (%.1f dp).", worstGap),
		fmt.Sprintf("Increase spacing to at least %g dp.", s))
}

var edgeNames = [4]string{"left", "top", "right", "bottom"}

// EdgeSpacing scores the distance from each screen edge and keeps the worst.
func EdgeSpacing(n *uitree.Node, d uitree.Display, th profile.Thresholds) (float64, *schema.IssueRecord) {
	b := n.Bounds
	distances := [4]float64{
		geometry.ToDP(float64(b.Left), d.Density),
		geometry.ToDP(float64(b.Top), d.Density),
		geometry.ToDP(float64(d.WidthPx-b.Right), d.Density),
		geometry.ToDP(float64(d.HeightPx-b.Bottom), d.Density),
	}
	e := th.EdgeSpacingDP
	worst := 1.0
	var near []string
	for i, dist := range distances {
		if dist >= e {
			continue
		}
		score := max(0, dist) / max(e, 1)
		worst = min(worst, score)
		near = append(near, fmt.Sprintf("%s %.1f dp", edgeNames[i], dist))
	}
	if len(near) == 0 {
		return 1.0, nil
	}
	return worst, newIssue(n, schema.CategoryEdgeSpacing,
		fmt.Sprintf("Element is too close to the screen edges (%s).", strings.Join(near, ", ")),
		fmt.Sprintf("Increase spacing from the screen edges to at least %g dp.", e))
}

// ContentDescription scores 1.0 when the node has a non-empty content description.
func ContentDescription(n *uitree.Node) (float64, *schema.IssueRecord) {
	if strings.TrimSpace(n.ContentDescription) != "" {
		return 1.0, nil
	}
	return 0.0, newIssue(n, schema.CategoryContentDescription,
		"Missing content description.",
		"Add a content description for accessibility.")
}

// HintText scores 1.0 when an input field has either text or a hint.
func HintText(n *uitree.Node) (float64, *schema.IssueRecord) {
	if strings.TrimSpace(n.Text) != "" || strings.TrimSpace(n.Hint) != "" {
		return 1.0, nil
	}
	return 0.0, newIssue(n, schema.CategoryHintText,
		"EditText is missing a hint.",
		"Add a hint to the EditText to provide context to users.")
}

// TextPresence reports an empty TextView. It carries no score.
func TextPresence(n *uitree.Node) *schema.IssueRecord {
	if strings.TrimSpace(n.Text) != "" {
		return nil
	}
	return newIssue(n, "",
		"TextView is empty.",
		"Add descriptive text to the TextView.")
}
