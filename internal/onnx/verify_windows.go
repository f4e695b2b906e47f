//go:build windows

package onnx

import (
	"errors"
	"io"
)

type VerifyOptions struct {
	Models        []string
	ORTLibrary    string
	ORTAPIVersion uint32
	Stdout        io.Writer
	Stderr        io.Writer
}

func VerifyModels(_ VerifyOptions) error {
	return errors.New("converted model verification is unavailable on windows in this build")
}
