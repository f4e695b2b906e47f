// Package pipeline drives ONNX to ORT format conversion across optimization
// styles and generates the required-operators config for each style.
//
// A Runtime style iteration converts every model twice: once saving runtime
// optimizations into the ORT format model, and once more into a temporary
// directory with only the restricted optimizations applied. Runtime
// optimizations may or may not be applied when the model is loaded, so the
// config is built from both sets of converted models.
package pipeline
