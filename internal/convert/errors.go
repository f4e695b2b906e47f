package convert

import (
	"errors"
	"fmt"
)

var (
	// ErrModelPathNotFound means the input is neither a file nor a directory.
	ErrModelPathNotFound = errors.New("model path is not a file or directory")
	// ErrCustomOpLibraryNotFound means the custom operator library file is missing.
	ErrCustomOpLibraryNotFound = errors.New("custom operator library not found")
	// ErrNoModelsFound is a discovery error: nothing under the path can be converted.
	ErrNoModelsFound = errors.New("no model files were found")
	// ErrOutputCollision means two input models would write the same output file.
	ErrOutputCollision = errors.New("conflicting output paths")
)

// ConversionError records the failure of a single model.
type ConversionError struct {
	Model string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Model, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
