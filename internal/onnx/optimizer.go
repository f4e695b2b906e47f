package onnx

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/example/ortconvert/internal/convert"
)

type pythonOptimizeRequest struct {
	ModelPath          string            `json:"model_path"`
	OptimizedModelPath string            `json:"optimized_model_path"`
	Level              int               `json:"level"`
	CustomOpLibrary    string            `json:"custom_op_library,omitempty"`
	ConfigEntries      map[string]string `json:"config_entries"`
	DisabledOptimizers []string          `json:"disabled_optimizers,omitempty"`
}

// PythonOptimizer creates an onnxruntime inference session per call, which
// optimizes the model and saves it to the requested path.
type PythonOptimizer struct {
	Helper PythonHelper
}

func (o *PythonOptimizer) Optimize(ctx context.Context, opts convert.SessionOptions) error {
	req := pythonOptimizeRequest{
		ModelPath:          opts.ModelPath,
		OptimizedModelPath: opts.OptimizedModelPath,
		Level:              int(opts.Level),
		CustomOpLibrary:    opts.CustomOpLibrary,
		ConfigEntries:      opts.ConfigEntries,
		DisabledOptimizers: opts.DisabledOptimizers,
	}

	cmd := exec.CommandContext(ctx, o.Helper.interpreter(), "-c", optimizeScript)
	if err := o.Helper.run(cmd, req, io.Discard); err != nil {
		return fmt.Errorf("onnxruntime session for %s: %w", opts.ModelPath, err)
	}

	return nil
}
