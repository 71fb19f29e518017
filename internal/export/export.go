// Package export persists analysis reports to disk. A failed write never
// invalidates the report: it surfaces as a *Warning the caller logs.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tmsikora/uiquality/internal/render"
	"github.com/tmsikora/uiquality/internal/schema"
)

// BaseName prefixes every exported file.
const BaseName = "ui_analysis_results"

// Warning reports an export that could not be written.
type Warning struct {
	Path string
	Err  error
}

func (w *Warning) Error() string {
	return fmt.Sprintf("export: %s: %v", w.Path, w.Err)
}

func (w *Warning) Unwrap() error { return w.Err }

// Options configures a Writer.
type Options struct {
	Dir    string
	CSV    bool
	JSON   bool
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Writer writes the enabled export formats for each report.
type Writer struct {
	opts Options
}

// NewWriter returns a Writer.
func NewWriter(opts Options) *Writer {
	opts.defaults()
	return &Writer{opts: opts}
}

// FileName returns the export file name for a run. Reports without a run ID
// get a fresh one so repeated exports never overwrite each other.
func FileName(runID, ext string) string {
	if runID == "" {
		runID = uuid.NewString()
	}
	short, _, _ := strings.Cut(runID, "-")
	return fmt.Sprintf("%s_%s.%s", BaseName, short, ext)
}

// Write persists the report in every enabled format and returns the paths
// written. The first failure is returned as a *Warning; formats after it are
// still attempted.
func (w *Writer) Write(report *schema.ScoreReport) ([]string, error) {
	var (
		written []string
		first   *Warning
	)
	record := func(path string, err error) {
		if err == nil {
			written = append(written, path)
			w.opts.Logger.Info("export: wrote report", "path", path)
			return
		}
		warn := &Warning{Path: path, Err: err}
		w.opts.Logger.Warn("export: write failed", "path", path, "error", err)
		if first == nil {
			first = warn
		}
	}

	if w.opts.CSV {
		path := filepath.Join(w.opts.Dir, FileName(report.RunID, "csv"))
		record(path, writeAtomic(path, []byte(report.Tabular)))
	}
	if w.opts.JSON {
		path := filepath.Join(w.opts.Dir, FileName(report.RunID, "json"))
		data, err := render.RenderJSON(report)
		if err == nil {
			err = writeAtomic(path, data)
		}
		record(path, err)
	}

	if first != nil {
		return written, first
	}
	return written, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place, so readers never see a partial export.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
