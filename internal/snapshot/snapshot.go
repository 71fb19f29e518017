// Package snapshot adapts host UI captures into a uitree.Node tree plus the
// display metrics the analyzer needs. Three sources are supported: the
// native JSON snapshot, an Android uiautomator XML dump and a live browser
// page read through the Chrome DevTools accessibility tree.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmsikora/uiquality/internal/uitree"
)

// Format names a snapshot encoding.
type Format string

const (
	FormatJSON        Format = "json"
	FormatUIAutomator Format = "uiautomator"
)

// ErrUnknownFormat is returned for a format name Decode does not support.
var ErrUnknownFormat = errors.New("snapshot: unknown format")

// Snapshot is one captured screen: its display metrics and its root node.
// Root may be nil for an empty capture.
type Snapshot struct {
	Display uitree.Display `json:"display"`
	Root    *uitree.Node   `json:"root"`
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatUIAutomator:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatForPath guesses the format from a file extension. XML files are
// treated as uiautomator dumps; everything else as JSON.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return FormatUIAutomator
	}
	return FormatJSON
}

// DecodeJSON reads a native JSON snapshot and links parent references.
func DecodeJSON(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode json: %w", err)
	}
	uitree.Link(s.Root)
	return &s, nil
}

// Decode reads a snapshot in the given format. density fills in the display
// density when the source does not carry one.
func Decode(r io.Reader, format Format, density float64) (*Snapshot, error) {
	switch format {
	case FormatJSON:
		s, err := DecodeJSON(r)
		if err != nil {
			return nil, err
		}
		if s.Display.Density == 0 && density > 0 {
			s.Display.Density = density
		}
		return s, nil
	case FormatUIAutomator:
		return DecodeUIAutomator(r, density)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LoadFile opens path and decodes it. An empty format is inferred from the
// file extension.
func LoadFile(path string, format Format, density float64) (*Snapshot, error) {
	if format == "" {
		format = FormatForPath(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, format, density)
}
