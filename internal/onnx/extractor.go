package onnx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/example/ortconvert/internal/manifest"
)

type pythonExtractRequest struct {
	ModelPath           string `json:"model_path"`
	EnableTypeReduction bool   `json:"enable_type_reduction"`
}

// PythonExtractor reads required operators from ORT format models with the
// onnxruntime tooling package.
type PythonExtractor struct {
	Helper PythonHelper
}

func (e *PythonExtractor) Extract(ctx context.Context, modelPath string, typeReduction bool) (manifest.OperatorSet, error) {
	req := pythonExtractRequest{ModelPath: modelPath, EnableTypeReduction: typeReduction}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Helper.interpreter(), "-c", extractOpsScript)
	if err := e.Helper.run(cmd, req, &out); err != nil {
		return nil, fmt.Errorf("read operators of %s: %w", modelPath, err)
	}

	set, err := manifest.ParseConfig(&out)
	if err != nil {
		return nil, fmt.Errorf("parse operators of %s: %w", modelPath, err)
	}

	return set, nil
}
