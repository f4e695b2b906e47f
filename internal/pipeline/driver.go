package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/ortconvert/internal/config"
	"github.com/example/ortconvert/internal/convert"
	"github.com/example/ortconvert/internal/manifest"
	"github.com/example/ortconvert/internal/metrics"
	"github.com/spf13/afero"
)

// Options configures one pipeline run.
type Options struct {
	ModelPathOrDir           string
	Styles                   []convert.Style
	LevelName                string
	EnableTypeReduction      bool
	CustomOpLibrary          string
	SaveOptimizedONNX        bool
	AllowFailures            bool
	TargetPlatform           string
	NNAPIPartitioningStopOps string
	// Verify loads every converted model before its config is built.
	Verify bool
}

// ManifestBuilder writes the required-operators config for converted models.
// *manifest.Builder implements it.
type ManifestBuilder interface {
	Build(ctx context.Context, models []string, configPath string, typeReduction bool) (manifest.OperatorSet, error)
}

// VerifyFunc loads converted models in the native runtime.
type VerifyFunc func(ctx context.Context, models []string) error

// Driver runs the conversion and config generation for every requested
// optimization style, one after another.
type Driver struct {
	FS        afero.Fs
	Converter ModelConverter
	Manifest  ManifestBuilder
	Verifier  VerifyFunc
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Run validates opts and processes each style in order. Artifacts of styles
// that finished before a failure are left in place. The returned report
// covers every style that was started.
func (d *Driver) Run(ctx context.Context, opts Options) (Report, error) {
	if d.Converter == nil || d.Manifest == nil {
		return Report{}, errors.New("converter and manifest builder are required")
	}
	fs := d.fs()
	logger := d.logger()

	opts, err := d.validate(fs, opts)
	if err != nil {
		return Report{}, err
	}

	base := convert.BaseConfigEntries(opts.TargetPlatform, opts.NNAPIPartitioningStopOps)
	report := Report{
		ModelPath:         opts.ModelPathOrDir,
		OptimizationLevel: opts.LevelName,
		TypeReduction:     opts.EnableTypeReduction,
		TargetPlatform:    opts.TargetPlatform,
	}

	coord := &Coordinator{FS: fs, Converter: d.Converter, Metrics: d.Metrics, Logger: logger}
	for _, style := range opts.Styles {
		sr, err := d.runStyle(ctx, coord, opts, style, base)
		report.Styles = append(report.Styles, sr)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

func (d *Driver) runStyle(ctx context.Context, coord *Coordinator, opts Options, style convert.Style, base map[string]string) (StyleReport, error) {
	logger := d.logger().With("style", style.String(), "level", opts.LevelName)
	logger.Info("converting models with optimization style and level")

	started := time.Now()
	defer func() { d.Metrics.ObserveStyle(style.String(), time.Since(started)) }()

	sr := StyleReport{Style: style.String()}

	configPath, err := convert.ConfigFilePath(d.fs(), opts.ModelPathOrDir, opts.LevelName, style, opts.EnableTypeReduction)
	if err != nil {
		return sr, err
	}

	req := convert.Request{
		ModelPathOrDir:    opts.ModelPathOrDir,
		LevelName:         opts.LevelName,
		Style:             style,
		CustomOpLibrary:   opts.CustomOpLibrary,
		SaveOptimizedONNX: opts.SaveOptimizedONNX,
		AllowFailures:     opts.AllowFailures,
		TargetPlatform:    opts.TargetPlatform,
		ConfigEntries:     base,
	}

	res, err := coord.Run(ctx, req, func(res convert.Result) error {
		if opts.Verify && d.Verifier != nil && len(res.Converted) > 0 {
			if err := d.Verifier(ctx, res.Converted); err != nil {
				return fmt.Errorf("verify %s models: %w", style, err)
			}
		}

		logger.Info("generating config file from ORT format models", "path", configPath)
		ops, err := d.Manifest.Build(ctx, res.Converted, configPath, opts.EnableTypeReduction)
		if err != nil {
			return fmt.Errorf("generate config for %s: %w", style, err)
		}
		d.Metrics.ObserveManifest(style.String(), opts.LevelName, ops.Len())

		sr.ConfigFile = configPath
		sr.Operators = ops.Len()

		return nil
	})
	sr.fill(res)
	if err != nil {
		return sr, err
	}
	if ferr := res.Err(); ferr != nil {
		logger.Warn("some models failed to convert", "failed", len(res.Failures), "error", ferr)
	}

	return sr, nil
}

// validate rejects configuration errors before any conversion starts.
func (d *Driver) validate(fs afero.Fs, opts Options) (Options, error) {
	if opts.ModelPathOrDir == "" {
		return opts, fmt.Errorf("%w: empty path", convert.ErrModelPathNotFound)
	}
	abs, err := filepath.Abs(opts.ModelPathOrDir)
	if err != nil {
		return opts, fmt.Errorf("resolve %s: %w", opts.ModelPathOrDir, err)
	}
	if ok, _ := afero.Exists(fs, abs); !ok {
		return opts, fmt.Errorf("%w: %s", convert.ErrModelPathNotFound, opts.ModelPathOrDir)
	}
	opts.ModelPathOrDir = abs

	if opts.CustomOpLibrary != "" {
		lib, err := filepath.Abs(opts.CustomOpLibrary)
		if err != nil {
			return opts, fmt.Errorf("resolve %s: %w", opts.CustomOpLibrary, err)
		}
		isDir, err := afero.IsDir(fs, lib)
		if err != nil || isDir {
			return opts, fmt.Errorf("%w: %s", convert.ErrCustomOpLibraryNotFound, opts.CustomOpLibrary)
		}
		opts.CustomOpLibrary = lib
	}

	if len(opts.Styles) == 0 {
		return opts, errors.New("at least one optimization style is required")
	}
	opts.LevelName = strings.ToLower(strings.TrimSpace(opts.LevelName))
	if opts.LevelName == "" {
		opts.LevelName = convert.LevelAllName
	}
	if _, err := convert.ParseLevel(opts.LevelName); err != nil {
		return opts, err
	}

	platform, err := config.NormalizeTargetPlatform(opts.TargetPlatform)
	if err != nil {
		return opts, err
	}
	opts.TargetPlatform = platform

	return opts, nil
}

func (d *Driver) fs() afero.Fs {
	if d.FS == nil {
		return afero.NewOsFs()
	}

	return d.FS
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}

	return d.Logger
}
