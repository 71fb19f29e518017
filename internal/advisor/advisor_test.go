package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/uitree"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	responses []string // returned in order; last entry is repeated if list exhausted
	callCount int
	prompts   []string
}

func (m *mockProvider) Complete(_ context.Context, _, user string, _ int, _ float64) (string, error) {
	m.prompts = append(m.prompts, user)
	if len(m.responses) == 0 {
		m.callCount++
		return "", fmt.Errorf("mockProvider: no responses configured")
	}
	idx := min(m.callCount, len(m.responses)-1)
	m.callCount++
	return m.responses[idx], nil
}

// installMock replaces NewProvider with a factory returning mp, and restores
// the original after the test.
func installMock(t *testing.T, mp *mockProvider) (gotProvider, gotModel *string) {
	t.Helper()
	var p, m string
	orig := NewProvider
	NewProvider = func(provider, model string) (Provider, error) {
		p, m = provider, model
		return mp, nil
	}
	t.Cleanup(func() { NewProvider = orig })
	return &p, &m
}

func testReport() *schema.ScoreReport {
	return &schema.ScoreReport{
		NodesVisited:         3,
		WeightedAverageScore: 0.62,
		WeightedMinimumScore: 0.4,
		Issues: []schema.IssueRecord{
			{ElementKind: uitree.KindButton, ElementID: "btn_ok", Category: schema.CategoryTouchArea,
				Message: "Touch target is too small."},
			{ElementKind: uitree.KindImageView, ElementID: "logo", Category: schema.CategoryContentDescription,
				Message: "Missing content description."},
		},
	}
}

func materialProfile(t *testing.T) profile.Profile {
	t.Helper()
	prof, err := profile.Load("material")
	if err != nil {
		t.Fatalf("profile.Load(\"material\"): %v", err)
	}
	return prof
}

const validPlan = `{
  "summary": "Two controls are hard to use with assistive technology.",
  "steps": [
    {"priority": 2, "element_id": "logo", "category": "ContentDescription", "action": "Add a content description", "rationale": "Screen readers announce nothing"},
    {"priority": 1, "element_id": "btn_ok", "category": "TouchArea", "action": "Grow the button to 48x48 dp", "rationale": "Small targets cause mis-taps"}
  ]
}`

func TestValidateResponse_OrdersAndRenumbers(t *testing.T) {
	plan, errs := ValidateResponse(validPlan, testReport())
	if plan == nil {
		t.Fatalf("expected plan, errs: %v", errs)
	}
	if len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[0].ElementID != "btn_ok" || plan.Steps[0].Priority != 1 {
		t.Errorf("steps[0] = %+v, want btn_ok at priority 1", plan.Steps[0])
	}
	if plan.Steps[1].ElementID != "logo" || plan.Steps[1].Priority != 2 {
		t.Errorf("steps[1] = %+v, want logo at priority 2", plan.Steps[1])
	}
}

func TestValidateResponse_UnknownElementDropped(t *testing.T) {
	raw := `{"summary":"s","steps":[
		{"priority":1,"element_id":"ghost","action":"a","rationale":"r"},
		{"priority":5,"element_id":"logo","category":"Colour","action":"a","rationale":"r"}]}`
	plan, errs := ValidateResponse(raw, testReport())
	if plan == nil {
		t.Fatalf("expected plan, errs: %v", errs)
	}
	if len(plan.Steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(plan.Steps))
	}
	if got := plan.Steps[0]; got.ElementID != "logo" || got.Priority != 1 || got.Category != "" {
		t.Errorf("steps[0] = %+v, want logo renumbered to 1 with category cleared", got)
	}
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{"steps[0].element_id", "steps[1].category"} {
		if !fields[want] {
			t.Errorf("missing validation error for %s; got %v", want, errs)
		}
	}
	if needsRepair(errs) {
		t.Error("dropped steps must not trigger a repair")
	}
}

func TestValidateResponse_InvalidJSON(t *testing.T) {
	plan, errs := ValidateResponse("not json", testReport())
	if plan != nil {
		t.Error("expected nil plan for invalid JSON")
	}
	if len(errs) == 0 || errs[0].Field != "json_parse" {
		t.Errorf("expected json_parse error, got %v", errs)
	}
}

func TestValidateResponse_MissingRequiredFields(t *testing.T) {
	cases := []string{
		`{"summary":"only a summary"}`,
		`{"steps":[]}`,
		`{"summary":"  ","steps":null}`,
	}
	for _, raw := range cases {
		plan, errs := ValidateResponse(raw, testReport())
		if plan != nil {
			t.Errorf("ValidateResponse(%s): expected nil plan", raw)
		}
		if !needsRepair(errs) {
			t.Errorf("ValidateResponse(%s): expected required_field error, got %v", raw, errs)
		}
	}
}

func TestValidateResponse_FencedAndBadEscapes(t *testing.T) {
	raw := "```json\n" + `{"summary":"Use \d+ dp","steps":[]}` + "\n```"
	plan, errs := ValidateResponse(raw, testReport())
	if plan == nil {
		t.Fatalf("expected plan, errs: %v", errs)
	}
	if plan.Summary != `Use \d+ dp` {
		t.Errorf("summary = %q", plan.Summary)
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"~~~\n{\"a\":1}\n~~~", `{"a":1}`},
		{"```json\n{\"a\":", `{"a":`},
		{"  {}  ", "{}"},
	}
	for _, tc := range cases {
		if got := stripMarkdownFences(tc.in); got != tc.want {
			t.Errorf("stripMarkdownFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAdvise_ValidResponse(t *testing.T) {
	mp := &mockProvider{responses: []string{validPlan}}
	gotProvider, gotModel := installMock(t, mp)

	plan, err := Advise(context.Background(), testReport(), materialProfile(t),
		Options{Provider: "openai", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if *gotProvider != "openai" || *gotModel != "gpt-4o" {
		t.Errorf("provider/model = %s/%s, want openai/gpt-4o", *gotProvider, *gotModel)
	}
	if plan.Model != "gpt-4o" {
		t.Errorf("plan.Model = %q, want gpt-4o", plan.Model)
	}
	if mp.callCount != 1 {
		t.Errorf("callCount = %d, want 1", mp.callCount)
	}
	if !strings.Contains(mp.prompts[0], "Button btn_ok [TouchArea]: Touch target is too small.") {
		t.Errorf("user prompt does not list the issues:\n%s", mp.prompts[0])
	}
}

func TestAdvise_RepairTriggered(t *testing.T) {
	mp := &mockProvider{responses: []string{"bad json", validPlan}}
	installMock(t, mp)

	plan, err := Advise(context.Background(), testReport(), materialProfile(t), Options{Model: "test-model"})
	if err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if mp.callCount != 2 {
		t.Errorf("expected 2 provider calls (initial + repair), got %d", mp.callCount)
	}
	if !strings.Contains(mp.prompts[1], "Your previous response was:\nbad json") {
		t.Error("repair prompt should include the previous response")
	}
	if plan.Model != "test-model" {
		t.Errorf("plan.Model = %q, want test-model", plan.Model)
	}
}

func TestAdvise_BothResponsesInvalid(t *testing.T) {
	mp := &mockProvider{responses: []string{"bad json"}}
	installMock(t, mp)

	_, err := Advise(context.Background(), testReport(), materialProfile(t), Options{})
	if !errors.Is(err, ErrInvalidModelOutput) {
		t.Errorf("expected ErrInvalidModelOutput, got %v", err)
	}
}

func TestAdvise_ProviderError(t *testing.T) {
	mp := &mockProvider{}
	installMock(t, mp)

	_, err := Advise(context.Background(), testReport(), materialProfile(t), Options{})
	if err == nil || !strings.Contains(err.Error(), "advisor: complete") {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestAdvise_NoIssuesSkipsProvider(t *testing.T) {
	mp := &mockProvider{responses: []string{validPlan}}
	installMock(t, mp)

	plan, err := Advise(context.Background(), &schema.ScoreReport{NodesVisited: 4}, materialProfile(t), Options{})
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if len(plan.Steps) != 0 {
		t.Errorf("expected empty plan, got %+v", plan.Steps)
	}
	if mp.callCount != 0 {
		t.Errorf("provider called %d times, want 0", mp.callCount)
	}
}

func TestDefaultNewProvider_Unknown(t *testing.T) {
	if _, err := defaultNewProvider("parrot", "x"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDefaultNewProvider_MissingKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	for _, name := range []string{"anthropic", "openai", "google"} {
		if _, err := defaultNewProvider(name, ModelFor(Options{Provider: name})); err == nil {
			t.Errorf("defaultNewProvider(%q): expected missing key error", name)
		}
	}
}

func TestModelFor(t *testing.T) {
	cases := []struct {
		opts Options
		want string
	}{
		{Options{}, "claude-sonnet-4-5"},
		{Options{Provider: "Google"}, "gemini-1.5-pro"},
		{Options{Provider: "openai", Model: "gpt-4.1"}, "gpt-4.1"},
	}
	for _, tc := range cases {
		if got := ModelFor(tc.opts); got != tc.want {
			t.Errorf("ModelFor(%+v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}
