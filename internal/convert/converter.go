package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Request fully determines one Converter invocation.
type Request struct {
	ModelPathOrDir string
	// OutputDir defaults to the model directory.
	OutputDir string
	LevelName string
	Style     Style
	// Mode defaults to ModeFor(Style).
	Mode              Mode
	CustomOpLibrary   string
	SaveOptimizedONNX bool
	AllowFailures     bool
	TargetPlatform    string
	ConfigEntries     map[string]string
}

func (r Request) mode() Mode {
	if r.Mode == ModeAuto {
		return ModeFor(r.Style)
	}

	return r.Mode
}

// Result lists the ORT format models written, in discovery order.
type Result struct {
	Converted []string
	Total     int
	Failures  []*ConversionError
}

// Err combines the tolerated per-model failures.
func (r Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}

	return err
}

// Append concatenates another result. Used to merge conversion passes.
func (r Result) Append(other Result) Result {
	return Result{
		Converted: append(append([]string(nil), r.Converted...), other.Converted...),
		Total:     r.Total + other.Total,
		Failures:  append(append([]*ConversionError(nil), r.Failures...), other.Failures...),
	}
}

type Converter struct {
	FS        afero.Fs
	Optimizer Optimizer
	Stdout    io.Writer
	Logger    *slog.Logger
}

type target struct {
	model     string
	ort       string
	optimized string
}

// Convert converts every model found under req.ModelPathOrDir. Failed models
// are logged; unless req.AllowFailures is set the first failure is returned
// along with the models converted so far.
func (c *Converter) Convert(ctx context.Context, req Request) (Result, error) {
	if c.Optimizer == nil {
		return Result{}, errors.New("optimizer is required")
	}
	fs := c.fs()
	logger := c.logger()

	level, err := ParseLevel(req.LevelName)
	if err != nil {
		return Result{}, err
	}

	modelDir, err := ModelDir(fs, req.ModelPathOrDir)
	if err != nil {
		return Result{}, err
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = modelDir
	}

	models, err := Discover(fs, req.ModelPathOrDir, logger)
	if err != nil {
		return Result{}, err
	}

	targets, err := planTargets(models, modelDir, outDir, req)
	if err != nil {
		return Result{}, err
	}

	disabled := DisabledOptimizers(level, req.TargetPlatform)
	mode := req.mode()

	res := Result{Total: len(targets)}
	for _, t := range targets {
		err := c.convertOne(ctx, t, level, mode, disabled, req)
		if err != nil {
			// A cancelled run is not a model failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}

			cerr := &ConversionError{Model: t.model, Err: err}
			logger.Error("error converting model", "model", t.model, "error", err)
			res.Failures = append(res.Failures, cerr)
			if !req.AllowFailures {
				return res, cerr
			}

			continue
		}

		res.Converted = append(res.Converted, t.ort)
	}

	_, _ = fmt.Fprintf(c.stdout(), "Converted %d/%d models successfully.\n", len(res.Converted), res.Total)

	return res, nil
}

func (c *Converter) convertOne(ctx context.Context, t target, level Level, mode Mode, disabled []string, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs := c.fs()
	logger := c.logger()

	if err := fs.MkdirAll(filepath.Dir(t.ort), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if req.SaveOptimizedONNX {
		opts := SessionOptions{
			ModelPath:          t.model,
			OptimizedModelPath: t.optimized,
			Level:              level,
			CustomOpLibrary:    req.CustomOpLibrary,
			ConfigEntries:      mode.ConfigEntries(req.ConfigEntries, FormatONNX),
			DisabledOptimizers: disabled,
		}
		logger.Info("saving optimized ONNX model", "model", t.model, "target", t.optimized)
		if err := c.Optimizer.Optimize(ctx, opts); err != nil {
			return fmt.Errorf("save optimized ONNX model: %w", err)
		}
	}

	opts := SessionOptions{
		ModelPath:          t.model,
		OptimizedModelPath: t.ort,
		Level:              level,
		CustomOpLibrary:    req.CustomOpLibrary,
		ConfigEntries:      mode.ConfigEntries(req.ConfigEntries, FormatORT),
		DisabledOptimizers: disabled,
	}
	logger.Info("converting model to ORT format", "model", t.model, "target", t.ort, "mode", mode.String())
	if err := c.Optimizer.Optimize(ctx, opts); err != nil {
		return err
	}

	if _, err := fs.Stat(t.ort); err != nil {
		return fmt.Errorf("optimizer did not produce %s: %w", t.ort, err)
	}

	return nil
}

func planTargets(models []string, modelDir, outDir string, req Request) ([]target, error) {
	targets := make([]target, 0, len(models))
	owners := make(map[string]string, len(models))

	for _, m := range models {
		rel, err := filepath.Rel(modelDir, m)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", m, err)
		}

		t := target{
			model:     m,
			ort:       ORTTargetPath(outDir, rel, req.LevelName, req.Style),
			optimized: OptimizedONNXTargetPath(outDir, rel, req.LevelName, req.Style),
		}
		if prev, ok := owners[t.ort]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrOutputCollision, prev, m, t.ort)
		}
		owners[t.ort] = m
		targets = append(targets, t)
	}

	return targets, nil
}

func (c *Converter) fs() afero.Fs {
	if c.FS == nil {
		return afero.NewOsFs()
	}

	return c.FS
}

func (c *Converter) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}

	return c.Logger
}

func (c *Converter) stdout() io.Writer {
	if c.Stdout == nil {
		return io.Discard
	}

	return c.Stdout
}
