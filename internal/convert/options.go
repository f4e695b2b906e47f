package convert

import (
	"context"
	"maps"

	"github.com/example/ortconvert/internal/config"
)

// Session config entry keys understood by the native optimizer.
const (
	ConfigKeySaveModelFormat           = "session.save_model_format"
	ConfigKeyMinimalBuildOptimizations = "optimization.minimal_build_optimizations"
	ConfigKeyQDQIsInt8Allowed          = "session.qdqisint8allowed"
	ConfigKeyNNAPIPartitioningStopOps  = "ep.nnapi.partitioning_stop_ops"
)

// nchwcTransformer creates device specific models; it is only kept for amd64.
const nchwcTransformer = "NchwcTransformer"

// Format is the serialization target of one optimizer invocation.
type Format int

const (
	FormatORT Format = iota
	FormatONNX
)

// Mode is the set of optimizations enabled for one conversion pass.
type Mode int

const (
	// ModeAuto resolves to ModeFor(style).
	ModeAuto Mode = iota
	// ModeFull applies every optimization at the requested level.
	ModeFull
	// ModeDeferred applies runtime-safe optimizations and saves the rest
	// into the ORT format model.
	ModeDeferred
	// ModeRestricted applies runtime-safe optimizations eagerly and saves
	// nothing for later.
	ModeRestricted
)

// ModeFor is the default mode of a style.
func ModeFor(style Style) Mode {
	if style == Runtime {
		return ModeDeferred
	}

	return ModeFull
}

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeFull:
		return "full"
	case ModeDeferred:
		return "deferred"
	case ModeRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// minimalBuildOptimizations returns the value for
// optimization.minimal_build_optimizations, or "" when it must be unset.
// An ONNX target cannot carry saved optimizations, so a deferred pass falls
// back to applying the restricted set.
func (m Mode) minimalBuildOptimizations(format Format) string {
	switch m {
	case ModeDeferred:
		if format == FormatORT {
			return "save"
		}
		return "apply"
	case ModeRestricted:
		return "apply"
	default:
		return ""
	}
}

// ConfigEntries builds the session config entries for one invocation. base
// is copied, never modified.
func (m Mode) ConfigEntries(base map[string]string, format Format) map[string]string {
	entries := make(map[string]string, len(base)+2)
	maps.Copy(entries, base)

	delete(entries, ConfigKeyMinimalBuildOptimizations)
	if v := m.minimalBuildOptimizations(format); v != "" {
		entries[ConfigKeyMinimalBuildOptimizations] = v
	}

	if format == FormatORT {
		entries[ConfigKeySaveModelFormat] = "ORT"
	} else {
		delete(entries, ConfigKeySaveModelFormat)
	}

	return entries
}

// BaseConfigEntries are the entries shared by every style and pass of a run.
func BaseConfigEntries(targetPlatform, nnapiPartitioningStopOps string) map[string]string {
	entries := map[string]string{ConfigKeyQDQIsInt8Allowed: "0"}
	if targetPlatform == config.PlatformARM {
		entries[ConfigKeyQDQIsInt8Allowed] = "1"
	}
	if nnapiPartitioningStopOps != "" {
		entries[ConfigKeyNNAPIPartitioningStopOps] = nnapiPartitioningStopOps
	}

	return entries
}

// DisabledOptimizers returns the optimizers excluded for a level and target.
func DisabledOptimizers(level Level, targetPlatform string) []string {
	if level == LevelAll && targetPlatform != config.PlatformAMD64 {
		return []string{nchwcTransformer}
	}

	return nil
}

// SessionOptions fully describes one optimizer invocation.
type SessionOptions struct {
	ModelPath          string
	OptimizedModelPath string
	Level              Level
	CustomOpLibrary    string
	ConfigEntries      map[string]string
	DisabledOptimizers []string
}

// Optimizer loads a model, optimizes it and serializes the result to
// OptimizedModelPath in one blocking call.
type Optimizer interface {
	Optimize(ctx context.Context, opts SessionOptions) error
}
