package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/verdict"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, profile.DefaultName, c.Profile)
	assert.Equal(t, ".", c.Output.Dir)
	assert.Equal(t, "anthropic", c.Advisor.Provider)
	assert.Equal(t, 4096, c.Advisor.MaxTokens)
	assert.Equal(t, 30, c.Browser.NavigateTimeoutSec)
	require.NoError(t, c.Validate())
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "uiq.yaml", `
profile: wcag-aa
thresholds:
  touch_target_dp: 32
display:
  density: 3
max_depth: 100
output:
  dir: reports
  csv: true
advisor:
  provider: openai
  model: gpt-4o
`)
	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "wcag-aa", c.Profile)
	assert.Equal(t, 32.0, c.Thresholds.TouchTargetDP)
	assert.Equal(t, 3.0, c.Display.Density)
	assert.Equal(t, 100, c.MaxDepth)
	assert.Equal(t, "reports", c.Output.Dir)
	assert.True(t, c.Output.CSV)
	assert.False(t, c.Output.JSON)
	assert.Equal(t, "openai", c.Advisor.Provider)
	assert.Equal(t, "gpt-4o", c.Advisor.Model)
	assert.Equal(t, 4096, c.Advisor.MaxTokens, "defaults fill unset fields")
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "uiq.toml", `
profile = "apple-hig"
max_depth = 64

[coefficients]
TouchArea = 0.4
ElementSpacing = 0.2
EdgeSpacing = 0.2
ContentDescription = 0.1
HintText = 0.1

[browser]
remote = "ws://127.0.0.1:9222/devtools/browser/abc"
stealth = true
`)
	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "apple-hig", c.Profile)
	assert.Equal(t, 64, c.MaxDepth)
	assert.Equal(t, 0.4, c.Coefficients["TouchArea"])
	assert.True(t, c.Browser.Stealth)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", c.Browser.Remote)

	p, err := c.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, 44.0, p.Thresholds.TouchTargetDP)
	assert.Equal(t, 0.4, p.Coefficients[schema.CategoryTouchArea])
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(writeFile(t, dir, "uiq.ini", "profile=material"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadFile(writeFile(t, dir, "bad.yaml", "profile: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")

	_, err = LoadFile(writeFile(t, dir, "bad.toml", "profile = "))
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(envMap(map[string]string{
		"UIQ_PROFILE":          "wcag-aa",
		"UIQ_DENSITY":          "2.75",
		"UIQ_MAX_DEPTH":        "40",
		"UIQ_OUTPUT_DIR":       "/tmp/out",
		"UIQ_ADVISOR_PROVIDER": "google",
		"UIQ_ADVISOR_MODEL":    "gemini-1.5-pro",
		"UIQ_BROWSER_REMOTE":   "ws://chrome:9222",
		"UIQ_BROWSER_STEALTH":  "true",
		"UIQ_UNRELATED":        "ignored",
	}))
	require.NoError(t, err)

	assert.Equal(t, "wcag-aa", c.Profile)
	assert.Equal(t, 2.75, c.Display.Density)
	assert.Equal(t, 40, c.MaxDepth)
	assert.Equal(t, "/tmp/out", c.Output.Dir)
	assert.Equal(t, "google", c.Advisor.Provider)
	assert.Equal(t, "gemini-1.5-pro", c.Advisor.Model)
	assert.Equal(t, "ws://chrome:9222", c.Browser.Remote)
	assert.True(t, c.Browser.Stealth)
}

func TestApplyEnv_BlankValuesIgnored(t *testing.T) {
	c := Default()
	require.NoError(t, c.ApplyEnv(envMap(map[string]string{"UIQ_PROFILE": "  "})))
	assert.Equal(t, profile.DefaultName, c.Profile)
}

func TestApplyEnv_Malformed(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"density", map[string]string{"UIQ_DENSITY": "dense"}},
		{"max depth", map[string]string{"UIQ_MAX_DEPTH": "deep"}},
		{"stealth", map[string]string{"UIQ_BROWSER_STEALTH": "sometimes"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Default().ApplyEnv(envMap(tc.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config: UIQ_")
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"negative density", func(c *Config) { c.Display.Density = -1 }, "display.density"},
		{"negative size", func(c *Config) { c.Display.WidthPx = -10 }, "display size"},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, "max_depth"},
		{"unknown provider", func(c *Config) { c.Advisor.Provider = "parrot" }, "unknown advisor provider"},
		{"unknown profile", func(c *Config) { c.Profile = "nope" }, "config: profile"},
		{"negative threshold", func(c *Config) { c.Thresholds.EdgeSpacingDP = -4 }, "thresholds must be positive"},
		{"partial coefficients", func(c *Config) { c.Coefficients = map[string]float64{"TouchArea": 1} }, "coefficients"},
		{"unknown fail_on", func(c *Config) { c.Gate.FailOn = "sometimes" }, "gate.fail_on"},
		{"min score above one", func(c *Config) { c.Gate.MinScore = 1.5 }, "gate.min_score"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestResolveProfile_ThresholdOverride(t *testing.T) {
	c := Default()
	c.Thresholds.ElementSpacingDP = 12

	p, err := c.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, 48.0, p.Thresholds.TouchTargetDP)
	assert.Equal(t, 12.0, p.Thresholds.ElementSpacingDP)
	assert.Equal(t, 16.0, p.Thresholds.EdgeSpacingDP)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "uiq.yml", "profile: wcag-aa\nmax_depth: 10\n")
	t.Setenv("UIQ_CONFIG", path)
	t.Setenv("UIQ_MAX_DEPTH", "20")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "wcag-aa", c.Profile)
	assert.Equal(t, 20, c.MaxDepth, "environment wins over file")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "UIQ_PROFILE=apple-hig\n")
	t.Setenv("UIQ_PROFILE", "placeholder")
	require.NoError(t, os.Unsetenv("UIQ_PROFILE"))
	t.Setenv("UIQ_CONFIG", "")
	t.Chdir(dir)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "apple-hig", c.Profile)
}

func TestVerdictGate(t *testing.T) {
	c := Default()
	_, failOn := c.VerdictGate()
	assert.Empty(t, failOn)

	require.NoError(t, c.ApplyEnv(envMap(map[string]string{"UIQ_FAIL_ON": "issues_found"})))
	c.Gate.MinScore = 0.8
	require.NoError(t, c.Validate())

	gate, failOn := c.VerdictGate()
	assert.Equal(t, verdict.IssuesFound, failOn)
	assert.Equal(t, 0.8, gate.MinScore)
	assert.Zero(t, gate.MinMinimalScore)
}
