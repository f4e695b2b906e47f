package convert

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConverter(fs afero.Fs, fail ...string) (*Converter, *fakeOptimizer, *bytes.Buffer) {
	opt := &fakeOptimizer{fs: fs, fail: make(map[string]bool)}
	for _, f := range fail {
		opt.fail[f] = true
	}
	var out bytes.Buffer

	return &Converter{FS: fs, Optimizer: opt, Stdout: &out}, opt, &out
}

func TestConvert_FixedAllLevel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx", "/models/sub/b.onnx")
	conv, opt, out := newTestConverter(fs)

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir: "/models",
		LevelName:      "all",
		Style:          Fixed,
		ConfigEntries:  BaseConfigEntries("", ""),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/models/a.ort", "/models/sub/b.ort"}, res.Converted)
	assert.Equal(t, 2, res.Total)
	assert.Empty(t, res.Failures)
	assert.Contains(t, out.String(), "Converted 2/2 models successfully.")

	require.Len(t, opt.calls, 2)
	call := opt.calls[0]
	assert.Equal(t, "/models/a.onnx", call.ModelPath)
	assert.Equal(t, LevelAll, call.Level)
	assert.Equal(t, "ORT", call.ConfigEntries[ConfigKeySaveModelFormat])
	assert.NotContains(t, call.ConfigEntries, ConfigKeyMinimalBuildOptimizations)
	assert.Equal(t, []string{"NchwcTransformer"}, call.DisabledOptimizers)
}

func TestConvert_LevelNameCaseInsensitive(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx")
	conv, opt, _ := newTestConverter(fs)

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir: "/models",
		LevelName:      "ALL",
		Style:          Fixed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/models/a.ort"}, res.Converted)

	require.Len(t, opt.calls, 1)
	assert.Equal(t, LevelAll, opt.calls[0].Level)
}

func TestConvert_CancelledIsNotAFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx", "/models/b.onnx")
	conv, opt, out := newTestConverter(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := conv.Convert(ctx, Request{
		ModelPathOrDir: "/models",
		LevelName:      "all",
		Style:          Fixed,
		AllowFailures:  true,
	})
	require.ErrorIs(t, err, context.Canceled)

	var cerr *ConversionError
	assert.False(t, errors.As(err, &cerr))
	assert.Empty(t, res.Converted)
	assert.Empty(t, res.Failures)
	assert.Empty(t, opt.calls)
	assert.NotContains(t, out.String(), "Converted")
}

func TestConvert_OutputDirPreservesLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/sub/deep/c.onnx")
	conv, _, _ := newTestConverter(fs)

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir: "/models",
		OutputDir:      "/tmp/out",
		LevelName:      "basic",
		Style:          Fixed,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/out/sub/deep/c.basic.ort"}, res.Converted)

	ok, err := afero.Exists(fs, "/tmp/out/sub/deep/c.basic.ort")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConvert_RuntimeStyleWithOptimizedCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx")
	conv, opt, _ := newTestConverter(fs)

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir:    "/models",
		LevelName:         "all",
		Style:             Runtime,
		SaveOptimizedONNX: true,
		TargetPlatform:    "amd64",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/models/a.with_runtime_opt.ort"}, res.Converted,
		"the inspectable copy is not part of the converted set")
	assert.Equal(t, []string{
		"/models/a.with_runtime_opt.optimized.onnx",
		"/models/a.with_runtime_opt.ort",
	}, opt.targets())

	onnxCall, ortCall := opt.calls[0], opt.calls[1]
	assert.Equal(t, "apply", onnxCall.ConfigEntries[ConfigKeyMinimalBuildOptimizations])
	assert.NotContains(t, onnxCall.ConfigEntries, ConfigKeySaveModelFormat)
	assert.Equal(t, "save", ortCall.ConfigEntries[ConfigKeyMinimalBuildOptimizations])
	assert.Nil(t, ortCall.DisabledOptimizers)
}

func TestConvert_FailureTolerated(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx", "/models/b.onnx", "/models/c.onnx")
	conv, _, out := newTestConverter(fs, "/models/b.onnx")

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir: "/models",
		LevelName:      "all",
		Style:          Fixed,
		AllowFailures:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/models/a.ort", "/models/c.ort"}, res.Converted)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "/models/b.onnx", res.Failures[0].Model)
	assert.True(t, errors.Is(res.Err(), errMalformed))
	assert.Contains(t, out.String(), "Converted 2/3 models successfully.")
}

func TestConvert_FailureAborts(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx", "/models/b.onnx", "/models/c.onnx")
	conv, opt, _ := newTestConverter(fs, "/models/b.onnx")

	res, err := conv.Convert(context.Background(), Request{
		ModelPathOrDir: "/models",
		LevelName:      "all",
		Style:          Fixed,
	})
	require.Error(t, err)

	var cerr *ConversionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "/models/b.onnx", cerr.Model)
	assert.Equal(t, []string{"/models/a.ort"}, res.Converted)
	assert.Len(t, opt.calls, 2, "conversion stops at the failing model")

	ok, _ := afero.Exists(fs, "/models/a.ort")
	assert.True(t, ok, "earlier outputs are left in place")
}

func TestConvert_ConvertedNeverExceedsTotal(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/m/1.onnx", "/m/2.onnx", "/m/3.onnx", "/m/4.onnx")

	for _, fail := range [][]string{nil, {"/m/1.onnx"}, {"/m/1.onnx", "/m/4.onnx"}, {"/m/1.onnx", "/m/2.onnx", "/m/3.onnx", "/m/4.onnx"}} {
		conv, _, _ := newTestConverter(fs, fail...)
		res, err := conv.Convert(context.Background(), Request{
			ModelPathOrDir: "/m",
			LevelName:      "all",
			AllowFailures:  true,
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Converted), res.Total)
		assert.Equal(t, res.Total, len(res.Converted)+len(res.Failures))
	}
}

func TestConvert_OutputCollision(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx", "/models/a.ONNX")
	conv, opt, _ := newTestConverter(fs)

	_, err := conv.Convert(context.Background(), Request{ModelPathOrDir: "/models", LevelName: "all"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutputCollision))
	assert.Empty(t, opt.calls, "collisions are detected before any conversion")
}

func TestConvert_MissingOutputIsFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx")

	conv := &Converter{FS: fs, Optimizer: noopOptimizer{}}
	_, err := conv.Convert(context.Background(), Request{ModelPathOrDir: "/models", LevelName: "all"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not produce")
}

func TestConvert_ConfigurationErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeModels(fs, "/models/a.onnx")
	conv, _, _ := newTestConverter(fs)

	_, err := conv.Convert(context.Background(), Request{ModelPathOrDir: "/missing", LevelName: "all"})
	assert.True(t, errors.Is(err, ErrModelPathNotFound))

	_, err = conv.Convert(context.Background(), Request{ModelPathOrDir: "/models", LevelName: "turbo"})
	require.Error(t, err)
}

type noopOptimizer struct{}

func (noopOptimizer) Optimize(context.Context, SessionOptions) error { return nil }
