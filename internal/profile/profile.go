// Package profile defines guideline profiles: the thresholds the metric
// calculators measure against and the default category weights.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmsikora/uiquality/internal/schema"
)

// Thresholds are the minimum compliant sizes, in density-independent units.
type Thresholds struct {
	TouchTargetDP    float64 `yaml:"touch_target_dp" toml:"touch_target_dp" json:"touch_target_dp"`
	ElementSpacingDP float64 `yaml:"element_spacing_dp" toml:"element_spacing_dp" json:"element_spacing_dp"`
	EdgeSpacingDP    float64 `yaml:"edge_spacing_dp" toml:"edge_spacing_dp" json:"edge_spacing_dp"`
}

// Profile describes one accessibility guideline.
type Profile struct {
	Name        string
	Description string
	Thresholds  Thresholds
	// Coefficients are the default weights before redistribution. Callers
	// must treat them as read-only; use Clone before modifying.
	Coefficients schema.Coefficients
}

// DefaultName is the profile used when none is configured.
const DefaultName = "material"

func defaultCoefficients() schema.Coefficients {
	return schema.Coefficients{
		schema.CategoryTouchArea:          0.3,
		schema.CategoryElementSpacing:     0.2,
		schema.CategoryEdgeSpacing:        0.2,
		schema.CategoryContentDescription: 0.15,
		schema.CategoryHintText:           0.15,
	}
}

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]Profile{
	"material": {
		Name:         "material",
		Description:  "Android Material guidelines: 48dp touch targets, 8dp spacing, 16dp screen margins.",
		Thresholds:   Thresholds{TouchTargetDP: 48, ElementSpacingDP: 8, EdgeSpacingDP: 16},
		Coefficients: defaultCoefficients(),
	},
	"wcag-aa": {
		Name:         "wcag-aa",
		Description:  "WCAG 2.2 AA target size minimum: 24px targets, 4px spacing, 8px margins.",
		Thresholds:   Thresholds{TouchTargetDP: 24, ElementSpacingDP: 4, EdgeSpacingDP: 8},
		Coefficients: defaultCoefficients(),
	},
	"apple-hig": {
		Name:         "apple-hig",
		Description:  "Apple Human Interface Guidelines: 44pt hit targets, 8pt spacing, 16pt margins.",
		Thresholds:   Thresholds{TouchTargetDP: 44, ElementSpacingDP: 8, EdgeSpacingDP: 16},
		Coefficients: defaultCoefficients(),
	},
}

// Load returns the named built-in profile or an error if the name is unknown.
// The returned profile owns a private copy of its coefficients.
func Load(name string) (Profile, error) {
	p, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	p.Coefficients = p.Coefficients.Clone()
	return p, nil
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that thresholds are positive.
func (t Thresholds) Validate() error {
	if t.TouchTargetDP <= 0 || t.ElementSpacingDP <= 0 || t.EdgeSpacingDP <= 0 {
		return fmt.Errorf("profile: thresholds must be positive, got %+v", t)
	}
	return nil
}
