//go:build !windows

package onnx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

type VerifyOptions struct {
	Models        []string
	ORTLibrary    string
	ORTAPIVersion uint32
	Stdout        io.Writer
	Stderr        io.Writer
}

var runNativeVerify = runNativeVerifyImpl

// VerifyModels loads every converted model in the native runtime. A model
// that fails to load is reported and the remaining ones are still checked.
func VerifyModels(opts VerifyOptions) error {
	if len(opts.Models) == 0 {
		return errors.New("no models to verify")
	}

	if opts.ORTAPIVersion == 0 {
		opts.ORTAPIVersion = 23
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	for _, m := range opts.Models {
		if _, err := os.Stat(m); err != nil {
			return fmt.Errorf("converted model %s: %w", m, err)
		}
	}

	return runNativeVerify(opts)
}

func runNativeVerifyImpl(opts VerifyOptions) error {
	runtime, err := ort.NewRuntime(opts.ORTLibrary, opts.ORTAPIVersion)
	if err != nil {
		return fmt.Errorf("initialize ONNX Runtime (lib=%q api=%d): %w", opts.ORTLibrary, opts.ORTAPIVersion, err)
	}

	defer func() { _ = runtime.Close() }()

	env, err := runtime.NewEnv("ortconvert-verify", ort.LoggingLevelWarning)
	if err != nil {
		return fmt.Errorf("create ONNX Runtime env: %w", err)
	}
	defer env.Close()

	var failures []string

	for _, m := range opts.Models {
		s, err := runtime.NewSession(env, m, nil)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", m, err)
			failures = append(failures, m)

			continue
		}
		s.Close()

		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s\n", m)
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d model(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}
