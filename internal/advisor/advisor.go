// Package advisor asks an LLM for a prioritized remediation plan for the
// issues in a score report. It handles provider communication, prompt
// construction, response validation and the single repair attempt.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/schema"
)

// ErrInvalidModelOutput is returned when both the initial and repair
// responses fail validation.
var ErrInvalidModelOutput = errors.New("advisor: invalid model output after repair attempt")

// Default models per provider, used when Options.Model is empty.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o",
	"google":    "gemini-1.5-pro",
}

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock. Tests must restore the
// original value with t.Cleanup.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures an Advise call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Debug       bool
}

// ValidationError records a single validation failure on an LLM response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ModelFor returns the model Advise uses for opts.
func ModelFor(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	name := strings.ToLower(opts.Provider)
	if name == "" {
		name = "anthropic"
	}
	return defaultModels[name]
}

// Advise builds a prompt from the report, calls the LLM, validates the
// response and performs one repair attempt if validation fails. A report
// without issues yields an empty plan and no provider call.
func Advise(ctx context.Context, report *schema.ScoreReport, prof profile.Profile, opts Options) (*schema.RemediationPlan, error) {
	if report == nil || len(report.Issues) == 0 {
		return &schema.RemediationPlan{Summary: "No issues to remediate.", Steps: []schema.RemediationStep{}}, nil
	}

	model := ModelFor(opts)
	provider, err := NewProvider(opts.Provider, model)
	if err != nil {
		return nil, fmt.Errorf("advisor: create provider: %w", err)
	}

	sysPrompt := buildSystemPrompt(prof)
	userPrompt := buildUserPrompt(report)

	if opts.Debug {
		fmt.Fprintf(os.Stderr, "=== DEBUG: system prompt ===\n%s\n", sysPrompt)
		fmt.Fprintf(os.Stderr, "=== DEBUG: user prompt ===\n%s\n", userPrompt)
	}

	raw, err := provider.Complete(ctx, sysPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("advisor: complete: %w", err)
	}

	plan, validationErrs := ValidateResponse(raw, report)
	if plan != nil && !needsRepair(validationErrs) {
		plan.Model = model
		return plan, nil
	}

	repairPrompt := buildRepairPrompt(userPrompt, raw, validationErrs)
	raw2, err := provider.Complete(ctx, sysPrompt, repairPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("advisor: repair complete: %w", err)
	}

	plan2, validationErrs2 := ValidateResponse(raw2, report)
	if plan2 != nil && !needsRepair(validationErrs2) {
		plan2.Model = model
		return plan2, nil
	}
	return nil, ErrInvalidModelOutput
}

// needsRepair returns true when validation errors include a parse or
// required-field failure.
func needsRepair(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Field == "json_parse" || e.Field == "required_field" {
			return true
		}
	}
	return false
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line, for truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes the code fences LLMs sometimes wrap around
// JSON output. A lone opening fence is stripped too.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by a character that is
// not a valid JSON escape.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes double-escapes invalid escape sequences in s.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// ValidateResponse parses and validates the raw LLM response against the
// report it was asked about. Steps that cite unknown element IDs are dropped
// and unknown categories cleared; both are recorded as non-fatal
// ValidationErrors. Surviving steps are ordered by priority and renumbered
// from 1. Returns a nil plan only on parse failure or missing required fields.
func ValidateResponse(raw string, report *schema.ScoreReport) (*schema.RemediationPlan, []ValidationError) {
	var errs []ValidationError

	raw = stripMarkdownFences(raw)

	var plan schema.RemediationPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		fixed := fixInvalidJSONEscapes(raw)
		if err2 := json.Unmarshal([]byte(fixed), &plan); err2 != nil {
			errs = append(errs, ValidationError{Field: "json_parse", Message: err.Error()})
			return nil, errs
		}
	}

	if plan.Steps == nil {
		errs = append(errs, ValidationError{Field: "required_field", Message: "steps is missing"})
	}
	if strings.TrimSpace(plan.Summary) == "" {
		errs = append(errs, ValidationError{Field: "required_field", Message: "summary is missing"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	known := knownElements(report)
	validCategory := make(map[schema.Category]bool, len(schema.Categories)+1)
	validCategory[""] = true
	for _, c := range schema.Categories {
		validCategory[c] = true
	}

	kept := plan.Steps[:0]
	for i, s := range plan.Steps {
		if !known[s.ElementID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].element_id", i),
				Message: fmt.Sprintf("element %q is not in the report; step dropped", s.ElementID),
			})
			continue
		}
		if !validCategory[s.Category] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].category", i),
				Message: fmt.Sprintf("invalid category %q; cleared", s.Category),
			})
			s.Category = ""
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].Priority < kept[b].Priority })
	for i := range kept {
		kept[i].Priority = i + 1
	}
	plan.Steps = kept
	return &plan, errs
}

// knownElements returns the element IDs that carry at least one issue.
func knownElements(report *schema.ScoreReport) map[string]bool {
	ids := make(map[string]bool)
	if report == nil {
		return ids
	}
	for _, is := range report.Issues {
		ids[is.ElementID] = true
	}
	return ids
}

// buildSystemPrompt assembles the LLM system prompt.
func buildSystemPrompt(prof profile.Profile) string {
	var sb strings.Builder

	sb.WriteString("You are an accessibility reviewer for mobile and web user interfaces.\n\n")

	sb.WriteString("Output ONLY valid JSON conforming to the schema below. " +
		"No prose, no markdown, no explanation outside the JSON.\n\n")

	sb.WriteString("Only cite element IDs that appear in the ISSUES list below. " +
		"Never invent elements. Order steps by the impact of the fix on users of assistive technology.\n\n")

	fmt.Fprintf(&sb, "Guideline profile: %s (%s). Minimum touch target %g dp, "+
		"minimum spacing between elements %g dp, minimum distance from screen edges %g dp.\n\n",
		prof.Name, prof.Description,
		prof.Thresholds.TouchTargetDP, prof.Thresholds.ElementSpacingDP, prof.Thresholds.EdgeSpacingDP)

	sb.WriteString(outputSchema)
	return sb.String()
}

// outputSchema is the JSON schema fragment shown to the LLM.
const outputSchema = `Output schema (JSON only):
{
  "summary": "one paragraph overview of the most important problems",
  "steps": [
    {
      "priority": 1,
      "element_id": "<id from the ISSUES list>",
      "category": "TouchArea|ElementSpacing|EdgeSpacing|ContentDescription|HintText|",
      "action": "concrete change to make",
      "rationale": "why it matters to users"
    }
  ]
}
`

// buildUserPrompt assembles the LLM user prompt from the report.
func buildUserPrompt(report *schema.ScoreReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "UI Quality Score: %.3f\n", report.WeightedAverageScore)
	fmt.Fprintf(&sb, "UI Quality Minimal Score: %.3f\n", report.WeightedMinimumScore)
	fmt.Fprintf(&sb, "Views analyzed: %d\n", report.NodesVisited)

	sb.WriteString("\nCATEGORY SCORES (average / minimum / weight):\n")
	for _, c := range schema.Categories {
		fmt.Fprintf(&sb, "  %s: %.3f / %.3f / %.3f\n",
			c, report.CategoryAverages[c], report.CategoryMinima[c], report.Coefficients[c])
	}

	sb.WriteString("\nISSUES:\n")
	for _, is := range report.Issues {
		cat := string(is.Category)
		if cat == "" {
			cat = "-"
		}
		fmt.Fprintf(&sb, "  %s %s [%s]: %s\n", is.ElementKind, is.ElementID, cat, is.Message)
	}

	sb.WriteString("\nProduce the JSON remediation plan now.")
	return sb.String()
}

// buildRepairPrompt includes the original prompt and the invalid response so
// the LLM has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nPlease output only the corrected JSON conforming to the schema. Do not repeat the error.")
	return sb.String()
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

func defaultNewProvider(providerName, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("advisor: unknown provider %q", providerName)
	}
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("advisor: ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return joinParts("anthropic", parts)
}

// joinParts concatenates the text parts of a provider response.
func joinParts(provider string, parts []string) (string, error) {
	out := strings.Join(parts, "")
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s: response contained no text content", provider)
	}
	return out, nil
}
