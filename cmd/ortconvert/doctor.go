package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/example/ortconvert/internal/config"
	"github.com/example/ortconvert/internal/doctor"
	"github.com/example/ortconvert/internal/onnx"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor [model_path_or_dir]",
		Short: "Check the Python tooling and ONNX Runtime installation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			helper := onnx.PythonHelper{PythonBin: cfg.Runtime.PythonBin}

			dcfg := doctor.Config{
				PythonVersion: func() (string, error) {
					return probePythonVersion(cfg.Runtime.PythonBin)
				},
				OnnxruntimeVersion: helper.Version,
				NativeRuntime: func() (string, error) {
					return describeRuntime(cfg.Runtime)
				},
				SkipNativeRuntime: !cfg.Convert.Verify && cfg.Runtime.ORTLibraryPath == "",
				CustomOpLibrary:   cfg.Convert.CustomOpLibrary,
			}
			if len(args) == 1 {
				dcfg.ModelPath = args[0]
			}

			result := doctor.Run(dcfg, out)
			if _, err := config.NormalizeTargetPlatform(cfg.Convert.TargetPlatform); err != nil {
				result.AddFailure(fmt.Sprintf("target platform: %v", err))
				_, _ = fmt.Fprintf(out, "%s target platform: %v\n", doctor.FailMark, err)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func describeRuntime(cfg config.RuntimeConfig) (string, error) {
	info, err := onnx.DetectRuntime(cfg)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s (%s)", info.LibraryPath, info.Version), nil
}

// probePythonVersion returns the version of bin, or of python3 then python
// when bin is empty.
func probePythonVersion(bin string) (string, error) {
	candidates := []string{"python3", "python"}
	if bin != "" {
		candidates = []string{bin}
	}

	for _, exe := range candidates {
		out, err := exec.CommandContext(context.Background(), exe, "--version").Output()
		if err != nil {
			continue
		}
		// Output is e.g. "Python 3.11.4\n"
		raw := strings.TrimSpace(string(out))

		raw = strings.TrimPrefix(raw, "Python ")
		if raw != "" {
			return raw, nil
		}
	}

	return "", fmt.Errorf("%s not found on PATH", strings.Join(candidates, "/"))
}
