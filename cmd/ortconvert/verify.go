package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/ortconvert/internal/onnx"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <model.ort|dir>...",
		Short: "Load ORT format models in the ONNX Runtime shared library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			models, err := collectORTModels(afero.NewOsFs(), args)
			if err != nil {
				return err
			}

			info, err := onnx.DetectRuntime(cfg.Runtime)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "onnxruntime library: %s (%s)\n", info.LibraryPath, info.Version)

			return onnx.VerifyModels(onnx.VerifyOptions{
				Models:        models,
				ORTLibrary:    info.LibraryPath,
				ORTAPIVersion: uint32(cfg.Runtime.ORTAPIVersion),
				Stdout:        cmd.OutOrStdout(),
				Stderr:        cmd.ErrOrStderr(),
			})
		},
	}

	return cmd
}

// collectORTModels expands directories to the .ort files below them. Files
// named explicitly are kept whatever their extension.
func collectORTModels(fs afero.Fs, paths []string) ([]string, error) {
	var models []string
	for _, p := range paths {
		isDir, err := afero.IsDir(fs, p)
		if err != nil {
			return nil, fmt.Errorf("model path %s: %w", p, err)
		}
		if !isDir {
			models = append(models, p)
			continue
		}

		var found []string
		err = afero.Walk(fs, p, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && strings.EqualFold(filepath.Ext(path), ".ort") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		models = append(models, found...)
	}

	if len(models) == 0 {
		return nil, errors.New("no ORT format models found")
	}

	return models, nil
}
