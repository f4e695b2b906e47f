package convert

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	onnxExt          = ".onnx"
	ortExt           = ".ort"
	optimizedONNXExt = ".optimized.onnx"
	configExt        = ".config"

	runtimeOptMarker = ".with_runtime_opt"
)

// OptimizationSuffix derives the output suffix for a level and style. The
// level name is lowercased and omitted when it is "all".
func OptimizationSuffix(level string, style Style, suffix string) string {
	level = normalizeLevelName(level)

	var b strings.Builder
	if level != LevelAllName {
		b.WriteString(".")
		b.WriteString(level)
	}
	if style == Runtime {
		b.WriteString(runtimeOptMarker)
	}
	b.WriteString(suffix)

	return b.String()
}

// ORTTargetPath is the ORT format output for a model at rel under outDir.
func ORTTargetPath(outDir, rel, level string, style Style) string {
	return replaceExt(filepath.Join(outDir, rel), OptimizationSuffix(level, style, ortExt))
}

// OptimizedONNXTargetPath is the inspectable ONNX copy for a model at rel under outDir.
func OptimizedONNXTargetPath(outDir, rel, level string, style Style) string {
	return replaceExt(filepath.Join(outDir, rel), OptimizationSuffix(level, style, optimizedONNXExt))
}

// ConfigFileName returns the required-operators config file name.
func ConfigFileName(level string, style Style, typeReduction bool) string {
	base := "required_operators"
	if typeReduction {
		base = "required_operators_and_types"
	}

	return base + OptimizationSuffix(level, style, configExt)
}

// ConfigFilePath places the config file inside a model directory, or next to
// a single model file in place of its extension.
func ConfigFilePath(fs afero.Fs, pathOrDir, level string, style Style, typeReduction bool) (string, error) {
	name := ConfigFileName(level, style, typeReduction)

	isDir, err := afero.IsDir(fs, pathOrDir)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", pathOrDir, err)
	}
	if isDir {
		return filepath.Join(pathOrDir, name), nil
	}

	return replaceExt(pathOrDir, "."+name), nil
}

func replaceExt(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}
