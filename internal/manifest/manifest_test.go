package manifest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	in := `# comment
ai.onnx;12;Conv,Relu
ai.onnx;13;Add{"inputs": {"0": ["float", "int64_t"]}},Gather
com.microsoft;1;FusedConv

`
	set, err := ParseConfig(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 5, set.Len())
	assert.True(t, set.Contains("ai.onnx", 12, "Conv"))
	assert.True(t, set.Contains("com.microsoft", 1, "FusedConv"))
	assert.Nil(t, set["ai.onnx"][13]["Gather"])

	add := set["ai.onnx"][13]["Add"]
	require.NotNil(t, add)
	assert.Equal(t, []string{"float", "int64_t"}, add.Inputs["0"])
}

func TestParseConfig_Errors(t *testing.T) {
	for _, in := range []string{
		"ai.onnx;Conv",
		"ai.onnx;x;Conv",
		"ai.onnx;12;Add{\"inputs\": {",
		"ai.onnx;12;Add}",
		"ai.onnx;12;{\"inputs\":{}}",
		"!globally_allowed_types;float",
	} {
		_, err := ParseConfig(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestWriteConfig_Deterministic(t *testing.T) {
	set := make(OperatorSet)
	set.Add("com.microsoft", 1, "FusedConv", nil)
	set.Add("ai.onnx", 13, "Relu", nil)
	set.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"int64_t", "float"}}})
	set.Add("ai.onnx", 12, "Conv", nil)

	var a, b bytes.Buffer
	require.NoError(t, WriteConfig(&a, set, 2, true))
	require.NoError(t, WriteConfig(&b, set, 2, true))
	assert.Equal(t, a.String(), b.String())

	want := `# Generated by ortconvert from 2 model(s).
ai.onnx;12;Conv
ai.onnx;13;Add{"inputs":{"0":["float","int64_t"]}},Relu
com.microsoft;1;FusedConv
`
	assert.Equal(t, want, a.String())

	var plain bytes.Buffer
	require.NoError(t, WriteConfig(&plain, set, 2, false))
	assert.Contains(t, plain.String(), "ai.onnx;13;Add,Relu\n")
}

func TestWriteThenParse(t *testing.T) {
	set := make(OperatorSet)
	set.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"float"}}, Outputs: map[string][]string{"0": {"float"}}})
	set.Add("ai.onnx", 13, "Mul", nil)

	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, set, 1, true))

	got, err := ParseConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestMerge_IsSuperset(t *testing.T) {
	a := make(OperatorSet)
	a.Add("ai.onnx", 13, "Conv", nil)
	a.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"float"}}})

	b := make(OperatorSet)
	b.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"int32_t"}, "1": {"float"}}})
	b.Add("com.microsoft", 1, "FusedConv", nil)

	merged := make(OperatorSet)
	merged.Merge(a)
	merged.Merge(b)

	assert.True(t, merged.Covers(a))
	assert.True(t, merged.Covers(b))
	assert.Equal(t, 3, merged.Len())

	add := merged["ai.onnx"][13]["Add"]
	require.NotNil(t, add)
	assert.Equal(t, []string{"float", "int32_t"}, add.Inputs["0"])
	assert.Equal(t, []string{"float"}, add.Inputs["1"])

	assert.Equal(t, []string{"float"}, a["ai.onnx"][13]["Add"].Inputs["0"], "inputs are not aliased")
}

func TestMerge_WidensToAllTypes(t *testing.T) {
	set := make(OperatorSet)
	set.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"float"}}})
	set.Add("ai.onnx", 13, "Add", nil)
	assert.Nil(t, set["ai.onnx"][13]["Add"])

	set.Add("ai.onnx", 13, "Add", &TypeInfo{Inputs: map[string][]string{"0": {"float"}}})
	assert.Nil(t, set["ai.onnx"][13]["Add"], "an unrestricted operator stays unrestricted")

	set.Add("ai.onnx", 13, "Cast", &TypeInfo{Custom: []byte(`[["float","int32_t"]]`)})
	set.Add("ai.onnx", 13, "Cast", &TypeInfo{Custom: []byte(`[["float","bool"]]`)})
	assert.Nil(t, set["ai.onnx"][13]["Cast"])

	set.Add("ai.onnx", 13, "Where", &TypeInfo{Custom: []byte(`[1, 2]`)})
	set.Add("ai.onnx", 13, "Where", &TypeInfo{Custom: []byte(`[1,2]`)})
	assert.NotNil(t, set["ai.onnx"][13]["Where"])
}

type fakeExtractor struct {
	sets map[string]OperatorSet
	err  map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, model string, _ bool) (OperatorSet, error) {
	if err := f.err[model]; err != nil {
		return nil, err
	}

	return f.sets[model], nil
}

func opsOf(ops ...string) OperatorSet {
	set := make(OperatorSet)
	for _, op := range ops {
		set.Add("ai.onnx", 13, op, nil)
	}

	return set
}

func TestBuilder_Build(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := &fakeExtractor{sets: map[string]OperatorSet{
		"/m/a.ort": opsOf("Conv", "Relu"),
		"/m/b.ort": opsOf("Add"),
	}}
	b := &Builder{FS: fs, Extractor: ex}

	set, err := b.Build(context.Background(), []string{"/m/a.ort", "/m/b.ort"}, "/m/required_operators.config", false)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	data, err := afero.ReadFile(fs, "/m/required_operators.config")
	require.NoError(t, err)
	assert.Equal(t, "# Generated by ortconvert from 2 model(s).\nai.onnx;13;Add,Conv,Relu\n", string(data))

	entries, err := afero.ReadDir(fs, "/m")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestBuilder_OverwritesDeterministically(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := &fakeExtractor{sets: map[string]OperatorSet{"/m/a.ort": opsOf("Conv")}}
	b := &Builder{FS: fs, Extractor: ex}

	require.NoError(t, afero.WriteFile(fs, "/m/required_operators.config", []byte("stale"), 0o644))

	_, err := b.Build(context.Background(), []string{"/m/a.ort"}, "/m/required_operators.config", false)
	require.NoError(t, err)
	first, _ := afero.ReadFile(fs, "/m/required_operators.config")

	_, err = b.Build(context.Background(), []string{"/m/a.ort"}, "/m/required_operators.config", false)
	require.NoError(t, err)
	second, _ := afero.ReadFile(fs, "/m/required_operators.config")

	assert.Equal(t, first, second)
	assert.NotContains(t, string(first), "stale")
}

func TestBuilder_ExtractErrorPropagates(t *testing.T) {
	fs := afero.NewMemMapFs()
	boom := errors.New("corrupt flatbuffer")
	b := &Builder{FS: fs, Extractor: &fakeExtractor{err: map[string]error{"/m/a.ort": boom}}}

	_, err := b.Build(context.Background(), []string{"/m/a.ort"}, "/m/required_operators.config", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	ok, _ := afero.Exists(fs, "/m/required_operators.config")
	assert.False(t, ok)
}

func TestBuilder_CancelledWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m/required_operators.config", []byte("ai.onnx;13;Conv\n"), 0o644))
	b := &Builder{FS: fs, Extractor: &fakeExtractor{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, nil, "/m/required_operators.config", false)
	require.ErrorIs(t, err, context.Canceled)

	data, err := afero.ReadFile(fs, "/m/required_operators.config")
	require.NoError(t, err)
	assert.Equal(t, "ai.onnx;13;Conv\n", string(data), "existing config is left untouched")
}
