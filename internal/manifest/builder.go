package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// Extractor reads the operators a converted model requires.
type Extractor interface {
	Extract(ctx context.Context, modelPath string, typeReduction bool) (OperatorSet, error)
}

// Builder reduces a set of converted models to one config file.
type Builder struct {
	FS        afero.Fs
	Extractor Extractor
	Logger    *slog.Logger
}

// Build extracts every model, merges the operator sets and writes the result
// to configPath, replacing any previous file. Any failure is returned; a
// partial config is never left behind.
func (b *Builder) Build(ctx context.Context, models []string, configPath string, typeReduction bool) (OperatorSet, error) {
	if b.Extractor == nil {
		return nil, errors.New("operator extractor is required")
	}
	fs := b.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(models) == 0 {
		logger.Warn("no converted models; writing an empty operator config", "path", configPath)
	}

	set := make(OperatorSet)
	for _, m := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ops, err := b.Extractor.Extract(ctx, m, typeReduction)
		if err != nil {
			return nil, fmt.Errorf("extract operators from %s: %w", m, err)
		}
		logger.Debug("extracted operators", "model", m, "operators", ops.Len())
		set.Merge(ops)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeAtomic(fs, configPath, set, len(models), typeReduction); err != nil {
		return nil, err
	}

	logger.Info("wrote operator config", "path", configPath, "models", len(models), "operators", set.Len())

	return set, nil
}

func writeAtomic(fs afero.Fs, path string, set OperatorSet, modelCount int, typeReduction bool) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, ".required_operators-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if err := WriteConfig(tmp, set, modelCount, typeReduction); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close config: %w", err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("replace config %s: %w", path, err)
	}

	return nil
}
