package onnx

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

var (
	//go:embed scripts/optimize.py
	optimizeScript string
	//go:embed scripts/extract_ops.py
	extractOpsScript string
)

// PythonHelper runs the embedded helper scripts with an interpreter that has
// the onnxruntime package installed.
type PythonHelper struct {
	PythonBin string
	// Stderr receives the helper's diagnostic output as it is produced.
	Stderr io.Writer
}

// DetectPython returns the first of python3 and python found on PATH.
func DetectPython() string {
	for _, bin := range []string{"python3", "python"} {
		if _, err := exec.LookPath(bin); err == nil {
			return bin
		}
	}

	return "python3"
}

func (h PythonHelper) interpreter() string {
	if h.PythonBin != "" {
		return h.PythonBin
	}

	return DetectPython()
}

// ValidateTooling checks that the interpreter exists and can import onnxruntime.
func (h PythonHelper) ValidateTooling() error {
	pythonBin := h.interpreter()
	if _, err := exec.LookPath(pythonBin); err != nil {
		return fmt.Errorf("python interpreter %q not found: %w", pythonBin, err)
	}

	check := exec.Command(pythonBin, "-c", "import onnxruntime")
	check.Stdout = io.Discard
	check.Stderr = os.Stderr
	if err := check.Run(); err != nil {
		return fmt.Errorf("python package onnxruntime is missing for %q: %w", pythonBin, err)
	}

	return nil
}

// Version returns the onnxruntime package version seen by the interpreter.
func (h PythonHelper) Version() (string, error) {
	out, err := exec.Command(h.interpreter(), "-c", "import onnxruntime; print(onnxruntime.__version__)").Output()
	if err != nil {
		return "", fmt.Errorf("query onnxruntime version: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

func (h PythonHelper) run(cmd *exec.Cmd, req any, stdout io.Writer) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode helper request: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if h.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, h.Stderr)
	}

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}

	return nil
}

// lastLine is usually the Python exception message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")

	return strings.TrimSpace(lines[len(lines)-1])
}
