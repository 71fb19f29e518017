//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmsikora/uiquality/internal/advisor"
	"github.com/tmsikora/uiquality/internal/schema"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "testdata", "snapshots", name)
}

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("UIQ_CONFIG", "")
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestAnalyze_Login(t *testing.T) {
	out, _, err := execute(t, "analyze", fixture("login.json"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{
		"UI Quality Minimal Score: 0.275",
		"ImageView found: ID=com.example.shop:id/logo",
		"EditText found: ID=com.example.shop:id/password",
		"ImageButton found: ID=com.example.shop:id/help",
		" - Issue: Element is too close to the screen edges (left 0.0 dp, bottom 0.0 dp).",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sign_in") {
		t.Errorf("compliant button should not be listed:\n%s", out)
	}
}

func TestAnalyze_Clean(t *testing.T) {
	out, _, err := execute(t, "analyze", "--snapshot", fixture("clean.json"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "UI Quality Score: 1.000") {
		t.Errorf("expected perfect score:\n%s", out)
	}
	if !strings.Contains(out, "No issues found in 3 analyzed views.") {
		t.Errorf("expected no-issues line:\n%s", out)
	}
}

func TestAnalyze_NullRoot(t *testing.T) {
	out, _, err := execute(t, "analyze", fixture("empty.json"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "Root node is null, no views analyzed.") {
		t.Errorf("expected null-root message:\n%s", out)
	}
}

func TestAnalyze_UIAutomator(t *testing.T) {
	out, _, err := execute(t, "analyze", fixture("settings.xml"), "--detailed")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, want := range []string{
		"CheckBox found: ID=com.example.settings:id/wifi",
		"ImageButton found: ID=com.example.settings:id/back",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyze_JSONOutput(t *testing.T) {
	out, _, err := execute(t, "analyze", fixture("login.json"), "-o", "json", "--profile", "wcag-aa")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var report schema.ScoreReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, out)
	}
	if report.Profile != "wcag-aa" {
		t.Errorf("profile = %q, want wcag-aa", report.Profile)
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
	if len(report.Findings()) != 3 {
		t.Errorf("findings = %d, want 3", len(report.Findings()))
	}
}

func TestAnalyze_CSVExport(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "analyze", fixture("login.json"), "--csv", "--out-dir", dir)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "ui_analysis_results_*.csv"))
	if len(matches) != 1 {
		t.Fatalf("expected one csv export, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if !strings.HasPrefix(lines[0], "ElementType;ID;Issue;Suggestion;;;") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[len(lines)-1], ";;;;;UI Quality Minimal Score:;0.275") {
		t.Errorf("unexpected trailer %q", lines[len(lines)-1])
	}
}

func TestAnalyze_ExportFailureIsNotFatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, stderr, err := execute(t, "analyze", fixture("clean.json"), "--csv", "--out-dir", blocker)
	if err != nil {
		t.Fatalf("export failure must not fail the run: %v", err)
	}
	if !strings.Contains(out, "UI Quality Score:") {
		t.Errorf("report missing from output:\n%s", out)
	}
	if !strings.Contains(stderr, "export: write failed") {
		t.Errorf("expected export warning in log:\n%s", stderr)
	}
}

type cannedProvider struct{ response string }

func (p *cannedProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	return p.response, nil
}

func TestAnalyze_Advise(t *testing.T) {
	orig := advisor.NewProvider
	advisor.NewProvider = func(_, _ string) (advisor.Provider, error) {
		return &cannedProvider{response: `{"summary":"Fix the help button first.","steps":[
			{"priority":1,"element_id":"com.example.shop:id/help","category":"TouchArea","action":"Grow to 48dp","rationale":"Too small"}]}`}, nil
	}
	t.Cleanup(func() { advisor.NewProvider = orig })

	out, _, err := execute(t, "analyze", fixture("login.json"), "--advise", "--model", "mock")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "## Remediation Plan") || !strings.Contains(out, "| 1 | com.example.shop:id/help | TouchArea |") {
		t.Errorf("remediation plan missing:\n%s", out)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"analyze"}, "a snapshot file or --url is required"},
		{[]string{"analyze", fixture("login.json"), "--profile", "nope"}, "unknown profile"},
		{[]string{"analyze", fixture("login.json"), "--format", "yaml"}, "unknown format"},
		{[]string{"analyze", fixture("login.json"), "-o", "xml"}, "unknown output format"},
		{[]string{"analyze", fixture("missing.json")}, "snapshot: open"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.args), func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func TestAnalyze_FailOn(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"issues fail", []string{"analyze", fixture("login.json"), "--fail-on", "issues_found"}, exitCodeFailOn},
		{"issues under below_threshold", []string{"analyze", fixture("login.json"), "--fail-on", "BELOW_THRESHOLD"}, 0},
		{"score floor", []string{"analyze", fixture("login.json"), "--min-score", "0.99", "--fail-on", "BELOW_THRESHOLD"}, exitCodeFailOn},
		{"clean passes", []string{"analyze", fixture("clean.json"), "--fail-on", "ISSUES_FOUND"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := execute(t, tc.args...)
			if code := exitCode(err); code != tc.want {
				t.Errorf("exit code = %d, want %d: %v", code, tc.want, err)
			}
			if !strings.Contains(stderr, "analyze: verdict") {
				t.Errorf("verdict not logged:\n%s", stderr)
			}
		})
	}
}

func TestAnalyze_MissingSnapshot_ExitsThree(t *testing.T) {
	_, _, err := execute(t, "analyze", fixture("missing.json"))
	if code := exitCode(err); code != exitCodeBadInput {
		t.Errorf("exit code = %d, want %d: %v", code, exitCodeBadInput, err)
	}
}

type failingProvider struct{}

func (failingProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	return "", errors.New("rate limited")
}

func TestAnalyze_AdvisorError_ExitsFour(t *testing.T) {
	orig := advisor.NewProvider
	advisor.NewProvider = func(_, _ string) (advisor.Provider, error) { return failingProvider{}, nil }
	t.Cleanup(func() { advisor.NewProvider = orig })

	_, _, err := execute(t, "analyze", fixture("login.json"), "--advise", "--model", "mock")
	if code := exitCode(err); code != exitCodeAPIError {
		t.Errorf("exit code = %d, want %d: %v", code, exitCodeAPIError, err)
	}
}

func TestProfiles(t *testing.T) {
	out, _, err := execute(t, "profiles")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	for _, want := range []string{"* material", "wcag-aa", "apple-hig", "touch 48dp"} {
		if !strings.Contains(out, want) {
			t.Errorf("profiles output missing %q:\n%s", want, out)
		}
	}
}
