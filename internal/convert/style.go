// Package convert turns ONNX models into ORT format models using an
// injected optimizer session service.
package convert

import (
	"fmt"
	"strings"
)

// Style selects how optimizations are applied to an ORT format model.
type Style int

const (
	// Fixed bakes every applicable optimization into the saved model.
	Fixed Style = iota
	// Runtime applies a restricted subset and records the rest so a loader
	// can attempt them when the model runs.
	Runtime
)

func (s Style) String() string {
	switch s {
	case Fixed:
		return "Fixed"
	case Runtime:
		return "Runtime"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle is case-insensitive.
func ParseStyle(raw string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fixed":
		return Fixed, nil
	case "runtime":
		return Runtime, nil
	default:
		return 0, fmt.Errorf("invalid optimization style %q (expected Fixed|Runtime)", raw)
	}
}

// ParseStyles keeps the requested order. Duplicates are rejected because two
// runs of one style write the same outputs.
func ParseStyles(raw []string) ([]Style, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one optimization style is required")
	}

	seen := make(map[Style]bool, len(raw))
	styles := make([]Style, 0, len(raw))
	for _, r := range raw {
		s, err := ParseStyle(r)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			return nil, fmt.Errorf("optimization style %s requested more than once", s)
		}
		seen[s] = true
		styles = append(styles, s)
	}

	return styles, nil
}
