package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmsikora/uiquality/internal/advisor"
	"github.com/tmsikora/uiquality/internal/config"
	"github.com/tmsikora/uiquality/internal/engine"
	"github.com/tmsikora/uiquality/internal/export"
	"github.com/tmsikora/uiquality/internal/profile"
	"github.com/tmsikora/uiquality/internal/render"
	"github.com/tmsikora/uiquality/internal/schema"
	"github.com/tmsikora/uiquality/internal/snapshot"
	"github.com/tmsikora/uiquality/internal/verdict"
)

// Exit codes. Anything else that fails exits 1.
const (
	exitCodeFailOn   = 2
	exitCodeBadInput = 3
	exitCodeAPIError = 4
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "uiquality",
		Short:         "Accessibility quality scoring for UI trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newProfilesCmd())
	return root
}

type analyzeFlags struct {
	config   string
	snapshot string
	format   string
	url      string
	profile  string
	density  float64
	maxDepth int
	outDir   string
	csv      bool
	json     bool
	output   string
	detailed bool
	advise   bool
	provider string
	model    string
	debug    bool
	failOn   string
	minScore float64
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze [snapshot]",
		Short: "Score a UI snapshot or a live web page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.snapshot = args[0]
			}
			return runAnalyze(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "config file (.yaml, .yml or .toml)")
	fl.StringVar(&f.snapshot, "snapshot", "", "snapshot file to analyze")
	fl.StringVar(&f.format, "format", "", "snapshot format: json or uiautomator (default: by extension)")
	fl.StringVar(&f.url, "url", "", "capture and analyze a live web page instead of a file")
	fl.StringVar(&f.profile, "profile", "", "guideline profile (see 'uiquality profiles')")
	fl.Float64Var(&f.density, "density", 0, "display density override (px per dp)")
	fl.IntVar(&f.maxDepth, "max-depth", 0, "maximum tree depth to analyze (0: default)")
	fl.StringVar(&f.outDir, "out-dir", "", "directory for exported files")
	fl.BoolVar(&f.csv, "csv", false, "export the ';'-separated results file")
	fl.BoolVar(&f.json, "json", false, "export the JSON report file")
	fl.StringVarP(&f.output, "output", "o", "text", "stdout format: text or json")
	fl.BoolVar(&f.detailed, "detailed", false, "list every analyzed element, not only those with issues")
	fl.BoolVar(&f.advise, "advise", false, "ask an LLM for a remediation plan")
	fl.StringVar(&f.provider, "provider", "", "advisor provider: anthropic, openai or google")
	fl.StringVar(&f.model, "model", "", "advisor model (default depends on provider)")
	fl.BoolVar(&f.debug, "debug", false, "debug logging and advisor prompt dump")
	fl.StringVar(&f.failOn, "fail-on", "", "exit 2 when the verdict is at or above this level (PASS, ISSUES_FOUND, INCOMPLETE, BELOW_THRESHOLD)")
	fl.Float64Var(&f.minScore, "min-score", 0, "weighted average score floor for the verdict")
	return cmd
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// applyFlags overlays explicitly set flags on the loaded configuration.
func applyFlags(cmd *cobra.Command, f analyzeFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("profile") {
		cfg.Profile = f.profile
	}
	if changed("density") {
		cfg.Display.Density = f.density
	}
	if changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if changed("out-dir") {
		cfg.Output.Dir = f.outDir
	}
	if changed("csv") {
		cfg.Output.CSV = f.csv
	}
	if changed("json") {
		cfg.Output.JSON = f.json
	}
	if changed("provider") {
		cfg.Advisor.Provider = f.provider
	}
	if changed("model") {
		cfg.Advisor.Model = f.model
	}
	if changed("fail-on") {
		cfg.Gate.FailOn = f.failOn
	}
	if changed("min-score") {
		cfg.Gate.MinScore = f.minScore
	}
}

func runAnalyze(cmd *cobra.Command, f analyzeFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := newLogger(cmd.ErrOrStderr(), f.debug)
	out := cmd.OutOrStdout()

	if f.output != "text" && f.output != "json" {
		return fmt.Errorf("analyze: unknown output format %q", f.output)
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	prof, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(ctx, f, cfg, log)
	if err != nil {
		return &exitError{code: exitCodeBadInput, err: err}
	}
	if d := cfg.Display; d.Density > 0 {
		snap.Display.Density = d.Density
	}
	if d := cfg.Display; d.WidthPx > 0 && d.HeightPx > 0 {
		snap.Display.WidthPx, snap.Display.HeightPx = d.WidthPx, d.HeightPx
	}

	eng, err := engine.New(engine.Options{Profile: prof, MaxDepth: cfg.MaxDepth, Logger: log})
	if err != nil {
		return err
	}
	report, err := eng.Run(snap.Root, snap.Display)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	switch {
	case f.output == "json":
		data, err := render.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case f.detailed:
		fmt.Fprint(out, render.RenderDetailed(report))
	default:
		fmt.Fprint(out, report.Narrative)
	}

	w := export.NewWriter(export.Options{
		Dir:    cfg.Output.Dir,
		CSV:    cfg.Output.CSV,
		JSON:   cfg.Output.JSON,
		Logger: log,
	})
	if _, err := w.Write(report); err != nil {
		var warn *export.Warning
		if !errors.As(err, &warn) {
			return err
		}
	}

	if f.advise {
		if err := advise(ctx, out, report, prof, cfg, f.debug); err != nil {
			return err
		}
	}

	gate, failOn := cfg.VerdictGate()
	v := verdict.Determine(report, gate)
	log.Info("analyze: verdict", "verdict", v, "issues", len(report.Issues),
		"weighted_average", report.WeightedAverageScore)
	for cat, n := range verdict.CountByCategory(report) {
		if cat == "" {
			cat = "Other"
		}
		log.Debug("analyze: issues by category", "category", cat, "count", n)
	}
	if verdict.Fails(v, failOn) {
		return &exitError{code: exitCodeFailOn, err: fmt.Errorf("analyze: verdict %s is at or above --fail-on %s", v, failOn)}
	}
	return nil
}

func advise(ctx context.Context, out io.Writer, report *schema.ScoreReport, prof profile.Profile, cfg *config.Config, debug bool) error {
	plan, err := advisor.Advise(ctx, report, prof, advisor.Options{
		Provider:    cfg.Advisor.Provider,
		Model:       cfg.Advisor.Model,
		MaxTokens:   cfg.Advisor.MaxTokens,
		Temperature: cfg.Advisor.Temperature,
		Debug:       debug,
	})
	if err != nil {
		return &exitError{code: exitCodeAPIError, err: fmt.Errorf("analyze: %w", err)}
	}
	fmt.Fprint(out, "\n"+render.RenderAdviceMarkdown(plan))
	return nil
}

func loadSnapshot(ctx context.Context, f analyzeFlags, cfg *config.Config, log *slog.Logger) (*snapshot.Snapshot, error) {
	if f.url != "" {
		if f.snapshot != "" {
			return nil, fmt.Errorf("analyze: --url and a snapshot file are mutually exclusive")
		}
		b, err := snapshot.OpenBrowser(snapshot.BrowserConfig{
			RemoteURL:       cfg.Browser.Remote,
			Stealth:         cfg.Browser.Stealth,
			NavigateTimeout: time.Duration(cfg.Browser.NavigateTimeoutSec) * time.Second,
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Capture(ctx, f.url)
	}

	if f.snapshot == "" {
		return nil, fmt.Errorf("analyze: a snapshot file or --url is required")
	}
	var format snapshot.Format
	if f.format != "" {
		var err error
		if format, err = snapshot.ParseFormat(f.format); err != nil {
			return nil, err
		}
	}
	return snapshot.LoadFile(f.snapshot, format, cfg.Display.Density)
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in guideline profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range profile.Names() {
				p, err := profile.Load(name)
				if err != nil {
					return err
				}
				marker := " "
				if name == profile.DefaultName {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-10s touch %gdp, spacing %gdp, edges %gdp\n    %s\n",
					marker, p.Name, p.Thresholds.TouchTargetDP, p.Thresholds.ElementSpacingDP,
					p.Thresholds.EdgeSpacingDP, p.Description)
			}
			return nil
		},
	}
}
