// Package render produces the human-readable and tabular output of a
// fully assembled schema.ScoreReport.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmsikora/uiquality/internal/metric"
	"github.com/tmsikora/uiquality/internal/schema"
)

// NoViewsMessage is the narrative line for a run without a root node.
const NoViewsMessage = "Root node is null, no views analyzed."

// tabularHeader is the fixed header row of the tabular export. The two
// unnamed columns are reserved.
var tabularHeader = []string{
	"ElementType", "ID", "Issue", "Suggestion", "", "",
	"TouchAreaScore", "ElementSpacingScore", "EdgeSpacingScore",
	"ContentDescriptionScore", "HintTextScore",
}

// issueJoiner separates multiple issues of one element inside a single cell.
const issueJoiner = " | "

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal report.
func RenderJSON(report *schema.ScoreReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// writeHeadline writes the two final scores with their definitions.
func writeHeadline(sb *strings.Builder, report *schema.ScoreReport) {
	fmt.Fprintf(sb, "UI Quality Score: %.3f\n", report.WeightedAverageScore)
	sb.WriteString("(weighted average of the category scores, calculated in 0-1 scale, where 0 is the lowest score and 1 is the highest)\n")
	fmt.Fprintf(sb, "UI Quality Minimal Score: %.3f\n", report.WeightedMinimumScore)
	sb.WriteString("(weighted sum of the worst element score in each category, same 0-1 scale)\n\n")
}

// writeIssues renders one " - Issue/ - Suggestion" pair per issue.
func writeIssues(sb *strings.Builder, issues []schema.IssueRecord) {
	for _, is := range issues {
		fmt.Fprintf(sb, " - Issue: %s\n", is.Message)
		fmt.Fprintf(sb, " - Suggestion: %s\n", is.Suggestion)
	}
}

func writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	sb.WriteString("\nWarnings:\n")
	for _, w := range warnings {
		fmt.Fprintf(sb, " - %s\n", w)
	}
}

// RenderNarrative produces the findings report: the headline scores followed
// by one block per element that has at least one issue.
func RenderNarrative(report *schema.ScoreReport) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder
	writeHeadline(&sb, report)

	if report.NodesVisited == 0 {
		sb.WriteString(NoViewsMessage + "\n")
		return sb.String()
	}

	findings := report.Findings()
	if len(findings) == 0 {
		fmt.Fprintf(&sb, "No issues found in %d analyzed views.\n", report.NodesVisited)
	} else {
		sb.WriteString("List of identified issues:\n")
		for _, f := range findings {
			fmt.Fprintf(&sb, "%s found: ID=%s\n", f.Kind, f.ID)
			writeIssues(&sb, f.Issues)
		}
	}
	writeWarnings(&sb, report.Warnings)
	return sb.String()
}

// RenderDetailed lists every analyzed element with its scores, whether or
// not it has issues.
func RenderDetailed(report *schema.ScoreReport) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder
	writeHeadline(&sb, report)
	if report.NodesVisited == 0 {
		sb.WriteString(NoViewsMessage + "\n")
		return sb.String()
	}
	for _, e := range report.Elements {
		fmt.Fprintf(&sb, "%s found: ID=%s\n", e.Kind, e.ID)
		for _, c := range metric.Applicable(e.Kind) {
			if v, ok := e.Scores[c]; ok {
				fmt.Fprintf(&sb, " - %s: %.3f\n", c, v)
			}
		}
		writeIssues(&sb, e.Issues)
	}
	writeWarnings(&sb, report.Warnings)
	return sb.String()
}

// RenderTabular produces the ';'-separated export: a header, one row per
// element with issues, and a five-row trailer with the category averages,
// the coefficients actually used and both final scores.
func RenderTabular(report *schema.ScoreReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("render: nil report")
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = ';'

	rows := [][]string{tabularHeader}
	for _, f := range report.Findings() {
		rows = append(rows, findingRow(f))
	}

	avg := []string{"", "", "", "", "", "Average scores:"}
	coef := []string{"", "", "", "", "", "Coefficients:"}
	for _, c := range schema.Categories {
		avg = append(avg, num(report.CategoryAverages[c]))
		coef = append(coef, num(report.Coefficients[c]))
	}
	rows = append(rows,
		make([]string, len(tabularHeader)),
		avg,
		coef,
		[]string{"", "", "", "", "", "UI Quality Score:", num(report.WeightedAverageScore)},
		[]string{"", "", "", "", "", "UI Quality Minimal Score:", num(report.WeightedMinimumScore)},
	)

	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("render: tabular: %w", err)
	}
	return sb.String(), nil
}

// findingRow builds one export row. Score cells are filled only for the
// categories that apply to the element's kind.
func findingRow(f schema.NodeFinding) []string {
	messages := make([]string, 0, len(f.Issues))
	suggestions := make([]string, 0, len(f.Issues))
	for _, is := range f.Issues {
		messages = append(messages, is.Message)
		suggestions = append(suggestions, is.Suggestion)
	}
	row := []string{
		f.Kind.String(), f.ID,
		strings.Join(messages, issueJoiner), strings.Join(suggestions, issueJoiner),
		"", "",
	}
	for _, c := range schema.Categories {
		cell := ""
		if v, ok := f.Scores[c]; ok && metric.AppliesTo(f.Kind, c) {
			cell = num(v)
		}
		row = append(row, cell)
	}
	return row
}

func num(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// RenderAdviceMarkdown renders an advisor remediation plan as Markdown.
func RenderAdviceMarkdown(plan *schema.RemediationPlan) string {
	if plan == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Remediation Plan\n\n")
	if plan.Summary != "" {
		sb.WriteString(mdEscape(plan.Summary))
		sb.WriteString("\n\n")
	}
	if len(plan.Steps) > 0 {
		sb.WriteString("| # | Element | Category | Action | Rationale |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, s := range plan.Steps {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
				s.Priority, mdEscape(s.ElementID), s.Category, mdEscape(s.Action), mdEscape(s.Rationale))
		}
		sb.WriteString("\n")
	}
	if plan.Model != "" {
		fmt.Fprintf(&sb, "_Generated by %s._\n", plan.Model)
	}
	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
