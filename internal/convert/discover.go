package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// IsModelFile reports whether path is an ONNX model that should be converted.
// Files named *.optimized.onnx are outputs of a previous run.
func IsModelFile(path string) bool {
	return hasSuffixFold(path, onnxExt) && !hasSuffixFold(path, optimizedONNXExt)
}

// Discover returns the models to convert under pathOrDir, sorted
// lexicographically. A single file is returned as-is if it is a model.
func Discover(fs afero.Fs, pathOrDir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := fs.Stat(pathOrDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelPathNotFound, pathOrDir)
		}
		return nil, fmt.Errorf("stat %s: %w", pathOrDir, err)
	}

	var models []string
	consider := func(path string) {
		if IsModelFile(path) {
			models = append(models, path)
			return
		}
		if hasSuffixFold(path, optimizedONNXExt) {
			logger.Info("ignoring previously optimized model", "path", path)
		}
	}

	if !info.IsDir() {
		consider(pathOrDir)
	} else {
		err = afero.Walk(fs, pathOrDir, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				consider(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", pathOrDir, err)
		}
	}

	if len(models) == 0 {
		return nil, fmt.Errorf("%w in '%s'", ErrNoModelsFound, pathOrDir)
	}

	sort.Strings(models)

	return models, nil
}

// ModelDir is the root that relative output paths are computed against.
func ModelDir(fs afero.Fs, pathOrDir string) (string, error) {
	isDir, err := afero.IsDir(fs, pathOrDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelPathNotFound, pathOrDir)
	}
	if isDir {
		return pathOrDir, nil
	}

	return filepath.Dir(pathOrDir), nil
}

func hasSuffixFold(path, suffix string) bool {
	return len(path) >= len(suffix) && strings.EqualFold(path[len(path)-len(suffix):], suffix)
}
