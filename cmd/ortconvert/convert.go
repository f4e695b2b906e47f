package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/example/ortconvert/internal/config"
	"github.com/example/ortconvert/internal/convert"
	"github.com/example/ortconvert/internal/manifest"
	"github.com/example/ortconvert/internal/metrics"
	"github.com/example/ortconvert/internal/onnx"
	"github.com/example/ortconvert/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// conversionTooling provides the optimizer and operator extractor. Tests
// replace it to run without Python.
var conversionTooling = pythonTooling

func pythonTooling(cfg config.Config) (convert.Optimizer, manifest.Extractor, error) {
	helper := onnx.PythonHelper{PythonBin: cfg.Runtime.PythonBin, Stderr: os.Stderr}
	if err := helper.ValidateTooling(); err != nil {
		return nil, nil, err
	}

	return &onnx.PythonOptimizer{Helper: helper}, &onnx.PythonExtractor{Helper: helper}, nil
}

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <model_path_or_dir>",
		Short: "Convert ONNX models to ORT format and write the required operators config",
		Long: `Convert an ONNX model, or every .onnx file under a directory, to ORT format.

Each optimization style produces one .ort file per model and one
required_operators config covering all converted models. Files named
*.optimized.onnx are skipped. The optimization level may also be set with
` + config.LevelEnvVar + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runConvert(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConvert(ctx context.Context, cfg config.Config, modelPathOrDir string, stdout io.Writer) error {
	styles, err := convert.ParseStyles(cfg.Convert.OptimizationStyles)
	if err != nil {
		return err
	}

	optimizer, extractor, err := conversionTooling(cfg)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	logger := slog.Default()

	var rec *metrics.Recorder
	if cfg.Output.MetricsFile != "" {
		rec = metrics.NewRecorder()
	}

	driver := &pipeline.Driver{
		FS: fs,
		Converter: &convert.Converter{
			FS:        fs,
			Optimizer: optimizer,
			Stdout:    stdout,
			Logger:    logger,
		},
		Manifest: &manifest.Builder{FS: fs, Extractor: extractor, Logger: logger},
		Verifier: nativeVerifier(cfg, stdout),
		Metrics:  rec,
		Logger:   logger,
	}

	report, runErr := driver.Run(ctx, pipeline.Options{
		ModelPathOrDir:           modelPathOrDir,
		Styles:                   styles,
		LevelName:                cfg.Convert.OptimizationLevel,
		EnableTypeReduction:      cfg.Convert.EnableTypeReduction,
		CustomOpLibrary:          cfg.Convert.CustomOpLibrary,
		SaveOptimizedONNX:        cfg.Convert.SaveOptimizedONNXModel,
		AllowFailures:            cfg.Convert.AllowConversionFailures,
		TargetPlatform:           cfg.Convert.TargetPlatform,
		NNAPIPartitioningStopOps: cfg.Convert.NNAPIPartitioningStopOps,
		Verify:                   cfg.Convert.Verify,
	})

	// Outputs are written for failed runs too; they record how far it got.
	err = runErr
	if path := cfg.Output.ReportFile; path != "" && len(report.Styles) > 0 {
		err = multierr.Append(err, report.WriteFile(fs, path))
	}
	if path := cfg.Output.MetricsFile; path != "" {
		err = multierr.Append(err, rec.WriteTextfile(path))
	}

	return err
}

func nativeVerifier(cfg config.Config, stdout io.Writer) pipeline.VerifyFunc {
	return func(_ context.Context, models []string) error {
		info, err := onnx.DetectRuntime(cfg.Runtime)
		if err != nil {
			return fmt.Errorf("verify needs the ONNX Runtime library: %w", err)
		}

		return onnx.VerifyModels(onnx.VerifyOptions{
			Models:        models,
			ORTLibrary:    info.LibraryPath,
			ORTAPIVersion: uint32(cfg.Runtime.ORTAPIVersion),
			Stdout:        stdout,
			Stderr:        os.Stderr,
		})
	}
}
