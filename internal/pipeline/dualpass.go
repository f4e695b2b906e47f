package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ortconvert/internal/convert"
	"github.com/example/ortconvert/internal/metrics"
	"github.com/spf13/afero"
)

const (
	passPrimary           = "primary"
	passWithoutRuntimeOpt = "without_runtime_opt"

	tempDirPrefix = passWithoutRuntimeOpt + "."
)

// ModelConverter converts every model a request names. *convert.Converter
// implements it.
type ModelConverter interface {
	Convert(ctx context.Context, req convert.Request) (convert.Result, error)
}

// Coordinator runs the conversion passes of one optimization style.
type Coordinator struct {
	FS        afero.Fs
	Converter ModelConverter
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Run converts the models for req.Style and calls use with every converted
// model. For the Runtime style the second pass writes into a temporary
// directory that exists until use returns and is removed on every path out
// of Run.
func (c *Coordinator) Run(ctx context.Context, req convert.Request, use func(convert.Result) error) (convert.Result, error) {
	logger := c.logger()
	fs := c.fs()

	res, err := c.Converter.Convert(ctx, req)
	c.Metrics.ObservePass(req.Style.String(), passPrimary, len(res.Converted), len(res.Failures))
	if err != nil {
		return res, err
	}

	if req.Style == convert.Runtime {
		modelDir, err := convert.ModelDir(fs, req.ModelPathOrDir)
		if err != nil {
			return res, err
		}

		tmp, err := afero.TempDir(fs, modelDir, tempDirPrefix)
		if err != nil {
			return res, fmt.Errorf("create temporary output directory: %w", err)
		}
		defer func() {
			if rmErr := fs.RemoveAll(tmp); rmErr != nil {
				logger.Warn("failed to remove temporary directory", "path", tmp, "error", rmErr)
			}
		}()

		second := restrictedPass(req, tmp)
		logger.Info("converting models again without runtime optimizations to generate a complete config file; these models are temporary",
			"dir", tmp)

		res2, err := c.Converter.Convert(ctx, second)
		if errors.Is(err, convert.ErrNoModelsFound) {
			logger.Warn("second pass found no models; config is built from the first pass only")
			res2, err = convert.Result{}, nil
		}
		c.Metrics.ObservePass(req.Style.String(), passWithoutRuntimeOpt, len(res2.Converted), len(res2.Failures))
		res = res.Append(res2)
		if err != nil {
			return res, err
		}
	}

	return res, use(res)
}

// restrictedPass converts with the runtime-safe optimizations applied
// eagerly, so the config also covers models whose saved runtime
// optimizations are never applied.
func restrictedPass(req convert.Request, outDir string) convert.Request {
	second := req
	second.Style = convert.Fixed
	second.Mode = convert.ModeRestricted
	second.OutputDir = outDir
	second.SaveOptimizedONNX = false

	return second
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}

	return c.Logger
}

func (c *Coordinator) fs() afero.Fs {
	if c.FS == nil {
		return afero.NewOsFs()
	}

	return c.FS
}
