package convert

import (
	"fmt"
	"strings"
)

// Level mirrors the native GraphOptimizationLevel values.
type Level int

const (
	LevelNone     Level = 0
	LevelBasic    Level = 1
	LevelExtended Level = 2
	LevelAll      Level = 99
)

// LevelAllName is the level name that denotes no restriction.
const LevelAllName = "all"

// ParseLevel maps a level name to its native value.
func ParseLevel(name string) (Level, error) {
	switch normalizeLevelName(name) {
	case "none", "disable":
		return LevelNone, nil
	case "basic":
		return LevelBasic, nil
	case "extended":
		return LevelExtended, nil
	case LevelAllName:
		return LevelAll, nil
	default:
		return 0, fmt.Errorf("invalid optimization level %q (expected none|basic|extended|all)", name)
	}
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelBasic:
		return "basic"
	case LevelExtended:
		return "extended"
	case LevelAll:
		return LevelAllName
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func normalizeLevelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
