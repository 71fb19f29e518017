// Package verdict turns a score report into a pass/fail decision for CI
// gates. No I/O happens here.
package verdict

import (
	"fmt"
	"strings"

	"github.com/tmsikora/uiquality/internal/schema"
)

// Verdict is the overall outcome of one analysis run.
type Verdict string

const (
	Pass           Verdict = "PASS"
	IssuesFound    Verdict = "ISSUES_FOUND"
	Incomplete     Verdict = "INCOMPLETE"
	BelowThreshold Verdict = "BELOW_THRESHOLD"
)

// Gate holds the score floors a run must meet. Zero floors are not checked.
type Gate struct {
	MinScore        float64
	MinMinimalScore float64
}

// Ordinal returns the severity order of a verdict, used by --fail-on:
// PASS=0, ISSUES_FOUND=1, INCOMPLETE=2, BELOW_THRESHOLD=3. Unknown is -1.
func Ordinal(v Verdict) int {
	switch v {
	case Pass:
		return 0
	case IssuesFound:
		return 1
	case Incomplete:
		return 2
	case BelowThreshold:
		return 3
	default:
		return -1
	}
}

// Parse accepts a verdict name in any case.
func Parse(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if Ordinal(v) < 0 {
		return "", fmt.Errorf("verdict: unknown verdict %q", s)
	}
	return v, nil
}

// Determine applies the gate to a report.
//
// Rules (in order of precedence):
//  1. Either final score under its floor → BELOW_THRESHOLD
//  2. Depth cap hit, part of the tree unanalyzed → INCOMPLETE
//  3. Any issue → ISSUES_FOUND
//  4. Otherwise → PASS
func Determine(report *schema.ScoreReport, gate Gate) Verdict {
	if report.WeightedAverageScore < gate.MinScore || report.WeightedMinimumScore < gate.MinMinimalScore {
		return BelowThreshold
	}
	if report.Truncated {
		return Incomplete
	}
	if len(report.Issues) > 0 {
		return IssuesFound
	}
	return Pass
}

// Fails reports whether v is at or above the failOn level.
func Fails(v, failOn Verdict) bool {
	return Ordinal(failOn) >= 0 && Ordinal(v) >= Ordinal(failOn)
}

// CountByCategory aggregates issue counts per category. Qualitative issues
// without a category are counted under the empty key.
func CountByCategory(report *schema.ScoreReport) map[schema.Category]int {
	counts := make(map[schema.Category]int)
	for _, is := range report.Issues {
		counts[is.Category]++
	}
	return counts
}
