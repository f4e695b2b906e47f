// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    python := testutil.RequirePythonModule(t, "onnxruntime")
//	    lib := testutil.RequireONNXRuntime(t)
//	    ...
//	}
package testutil

import (
	"context"
	"os"
	"os/exec"
	"testing"
)

// PythonEnvVar overrides the interpreter used by integration tests.
const PythonEnvVar = "ORTCONVERT_PYTHON_BIN"

// RequirePython skips the test if no Python interpreter is found in PATH or
// at the path given by ORTCONVERT_PYTHON_BIN. It returns the interpreter.
func RequirePython(tb testing.TB) string {
	tb.Helper()

	if exe := os.Getenv(PythonEnvVar); exe != "" {
		if _, err := exec.LookPath(exe); err != nil {
			tb.Skipf("python interpreter %s=%q not found", PythonEnvVar, exe)
			return ""
		}
		return exe
	}

	for _, exe := range []string{"python3", "python"} {
		if _, err := exec.LookPath(exe); err == nil {
			return exe
		}
	}

	tb.Skipf("python interpreter not available; set %s to override", PythonEnvVar)
	return ""
}

// RequirePythonModule skips the test unless every module imports with the
// interpreter returned by RequirePython.
func RequirePythonModule(tb testing.TB, modules ...string) string {
	tb.Helper()

	python := RequirePython(tb)
	for _, m := range modules {
		err := exec.CommandContext(context.Background(), python, "-c", "import "+m).Run()
		if err != nil {
			tb.Skipf("python module %q not importable with %s: %v", m, python, err)
			return ""
		}
	}

	return python
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// ORTCONVERT_ORT_LIB env var, then common system library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "ORTCONVERT_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			_, err := os.Stat(p)
			if err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
			return ""
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		_, err := os.Stat(p)
		if err == nil {
			return p
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or ORTCONVERT_ORT_LIB")
	return ""
}
