// Package doctor provides environment preflight checks for ortconvert.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// PythonVersion returns the Python version string (e.g. "3.11.4").
	PythonVersion VersionFunc
	// OnnxruntimeVersion returns the version of the onnxruntime Python
	// package, which performs the conversion.
	OnnxruntimeVersion VersionFunc
	// NativeRuntime returns a description of the ONNX Runtime shared library
	// used by verify.
	NativeRuntime VersionFunc
	// SkipNativeRuntime skips the shared library check (verify not requested).
	SkipNativeRuntime bool
	// CustomOpLibrary is checked for existence when set.
	CustomOpLibrary string
	// ModelPath is checked for existence when set.
	ModelPath string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- Python version ---------------------------------------------------
	pyVer, err := call(cfg.PythonVersion)
	if err != nil {
		res.fail(fmt.Sprintf("python version: %v", err))
		fmt.Fprintf(w, "%s python version: not found (%v)\n", FailMark, err)
	} else if pyErr := checkPythonVersion(pyVer); pyErr != nil {
		res.fail(fmt.Sprintf("python version: %v", pyErr))
		fmt.Fprintf(w, "%s python version %s: %v\n", FailMark, pyVer, pyErr)
	} else {
		fmt.Fprintf(w, "%s python version: %s\n", PassMark, pyVer)
	}

	// ---- onnxruntime python package ---------------------------------------
	ortVer, err := call(cfg.OnnxruntimeVersion)
	if err != nil {
		res.fail(fmt.Sprintf("onnxruntime package: %v", err))
		fmt.Fprintf(w, "%s onnxruntime package: not importable (%v)\n", FailMark, err)
	} else if verErr := checkOnnxruntimeVersion(ortVer); verErr != nil {
		res.fail(fmt.Sprintf("onnxruntime package: %v", verErr))
		fmt.Fprintf(w, "%s onnxruntime package %s: %v\n", FailMark, ortVer, verErr)
	} else {
		fmt.Fprintf(w, "%s onnxruntime package: %s\n", PassMark, ortVer)
	}

	// ---- ONNX Runtime shared library --------------------------------------
	if cfg.SkipNativeRuntime {
		fmt.Fprintf(w, "%s onnxruntime library: skipped\n", PassMark)
	} else {
		desc, err := call(cfg.NativeRuntime)
		if err != nil {
			res.fail(fmt.Sprintf("onnxruntime library: %v", err))
			fmt.Fprintf(w, "%s onnxruntime library: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, desc)
		}
	}

	// ---- paths -------------------------------------------------------------
	checkPath(&res, w, "custom op library", cfg.CustomOpLibrary)
	checkPath(&res, w, "model path", cfg.ModelPath)

	return res
}

func call(fn VersionFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("no probe configured")
	}

	return fn()
}

func checkPath(res *Result, w io.Writer, what, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		res.fail(fmt.Sprintf("%s %q: %v", what, path, err))
		fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, what, path)
		return
	}
	fmt.Fprintf(w, "%s %s: %s\n", PassMark, what, path)
}

// checkPythonVersion returns an error if ver is outside [3.10, 3.15).
// ver is expected to be a string like "3.11.4".
func checkPythonVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 3 {
		return fmt.Errorf("requires Python 3, got %d", major)
	}
	if minor < 10 {
		return fmt.Errorf("requires Python >=3.10, got 3.%d", minor)
	}
	if minor >= 15 {
		return fmt.Errorf("requires Python <3.15, got 3.%d", minor)
	}
	return nil
}

// checkOnnxruntimeVersion requires 1.11 or later, the first release that
// saves runtime optimizations into ORT format models.
func checkOnnxruntimeVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major < 1 || (major == 1 && minor < 11) {
		return fmt.Errorf("requires onnxruntime >=1.11, got %d.%d", major, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
