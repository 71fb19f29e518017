// Package config loads analyzer settings from a YAML or TOML file, a .env
// file and UIQ_* environment variables. Command-line flags are applied by
// the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/score"
	"github.com/tmsikora/uiquality/internal/verdict"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UIQ_"

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config is the top-level analyzer configuration.
type Config struct {
	Profile      string             `yaml:"profile" toml:"profile"`
	Thresholds   profile.Thresholds `yaml:"thresholds" toml:"thresholds"`
	Coefficients map[string]float64 `yaml:"coefficients" toml:"coefficients"`
	Display      DisplayConfig      `yaml:"display" toml:"display"`
	MaxDepth     int                `yaml:"max_depth" toml:"max_depth"`
	Output       OutputConfig       `yaml:"output" toml:"output"`
	Advisor      AdvisorConfig      `yaml:"advisor" toml:"advisor"`
	Browser      BrowserConfig      `yaml:"browser" toml:"browser"`
	Gate         GateConfig         `yaml:"gate" toml:"gate"`
}

// DisplayConfig overrides the display metrics of a snapshot. Zero fields
// keep the snapshot's own values.
type DisplayConfig struct {
	Density  float64 `yaml:"density" toml:"density"`
	WidthPx  int     `yaml:"width_px" toml:"width_px"`
	HeightPx int     `yaml:"height_px" toml:"height_px"`
}

// OutputConfig controls where reports are written.
type OutputConfig struct {
	Dir  string `yaml:"dir" toml:"dir"`
	CSV  bool   `yaml:"csv" toml:"csv"`
	JSON bool   `yaml:"json" toml:"json"`
}

// AdvisorConfig configures the optional LLM remediation advisor.
type AdvisorConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"`
	Model       string  `yaml:"model" toml:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
}

// BrowserConfig configures live web page capture.
type BrowserConfig struct {
	Remote             string `yaml:"remote" toml:"remote"`
	Stealth            bool   `yaml:"stealth" toml:"stealth"`
	NavigateTimeoutSec int    `yaml:"navigate_timeout_sec" toml:"navigate_timeout_sec"`
}

// GateConfig sets the CI quality gate. An empty FailOn never fails a run.
type GateConfig struct {
	FailOn          string  `yaml:"fail_on" toml:"fail_on"`
	MinScore        float64 `yaml:"min_score" toml:"min_score"`
	MinMinimalScore float64 `yaml:"min_minimal_score" toml:"min_minimal_score"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = profile.DefaultName
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = "anthropic"
	}
	if c.Advisor.MaxTokens <= 0 {
		c.Advisor.MaxTokens = 4096
	}
	if c.Browser.NavigateTimeoutSec <= 0 {
		c.Browser.NavigateTimeoutSec = 30
	}
}

// LoadFile reads a configuration file. The format is chosen by extension:
// .yaml and .yml for YAML, .toml for TOML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Load builds the effective configuration: an optional file (path, or
// UIQ_CONFIG when path is empty), then .env and process environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from UIQ_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PROFILE"); ok {
		c.Profile = v
	}
	if v, ok := get("DENSITY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %sDENSITY: %w", EnvPrefix, err)
		}
		c.Display.Density = f
	}
	if v, ok := get("MAX_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_DEPTH: %w", EnvPrefix, err)
		}
		c.MaxDepth = n
	}
	if v, ok := get("OUTPUT_DIR"); ok {
		c.Output.Dir = v
	}
	if v, ok := get("ADVISOR_PROVIDER"); ok {
		c.Advisor.Provider = v
	}
	if v, ok := get("ADVISOR_MODEL"); ok {
		c.Advisor.Model = v
	}
	if v, ok := get("BROWSER_REMOTE"); ok {
		c.Browser.Remote = v
	}
	if v, ok := get("BROWSER_STEALTH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sBROWSER_STEALTH: %w", EnvPrefix, err)
		}
		c.Browser.Stealth = b
	}
	if v, ok := get("FAIL_ON"); ok {
		c.Gate.FailOn = v
	}
	return nil
}

// Validate rejects values no run could use.
func (c *Config) Validate() error {
	if c.Display.Density < 0 {
		return fmt.Errorf("config: display.density must not be negative, got %v", c.Display.Density)
	}
	if c.Display.WidthPx < 0 || c.Display.HeightPx < 0 {
		return fmt.Errorf("config: display size must not be negative, got %dx%d", c.Display.WidthPx, c.Display.HeightPx)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: max_depth must not be negative, got %d", c.MaxDepth)
	}
	switch strings.ToLower(c.Advisor.Provider) {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("config: unknown advisor provider %q", c.Advisor.Provider)
	}
	if c.Gate.FailOn != "" {
		if _, err := verdict.Parse(c.Gate.FailOn); err != nil {
			return fmt.Errorf("config: gate.fail_on: %w", err)
		}
	}
	for name, v := range map[string]float64{"min_score": c.Gate.MinScore, "min_minimal_score": c.Gate.MinMinimalScore} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: gate.%s must be within [0,1], got %v", name, v)
		}
	}
	_, err := c.ResolveProfile()
	return err
}

// VerdictGate returns the score floors and the fail-on level. Validate must
// have passed.
func (c *Config) VerdictGate() (verdict.Gate, verdict.Verdict) {
	gate := verdict.Gate{MinScore: c.Gate.MinScore, MinMinimalScore: c.Gate.MinMinimalScore}
	if c.Gate.FailOn == "" {
		return gate, ""
	}
	failOn, _ := verdict.Parse(c.Gate.FailOn)
	return gate, failOn
}

// ResolveProfile loads the named profile and applies the threshold and
// coefficient overrides. Non-zero thresholds replace the profile's; a
// coefficient override must name a complete, valid set.
func (c *Config) ResolveProfile() (profile.Profile, error) {
	p, err := profile.Load(c.Profile)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("config: %w", err)
	}
	if v := c.Thresholds.TouchTargetDP; v != 0 {
		p.Thresholds.TouchTargetDP = v
	}
	if v := c.Thresholds.ElementSpacingDP; v != 0 {
		p.Thresholds.ElementSpacingDP = v
	}
	if v := c.Thresholds.EdgeSpacingDP; v != 0 {
		p.Thresholds.EdgeSpacingDP = v
	}
	if err := p.Thresholds.Validate(); err != nil {
		return profile.Profile{}, fmt.Errorf("config: %w", err)
	}

	if len(c.Coefficients) > 0 {
		coeffs := make(schema.Coefficients, len(c.Coefficients))
		for k, v := range c.Coefficients {
			coeffs[schema.Category(k)] = v
		}
		if err := score.Validate(coeffs); err != nil {
			return profile.Profile{}, fmt.Errorf("config: coefficients: %w", err)
		}
		p.Coefficients = coeffs
	}
	return p, nil
}
