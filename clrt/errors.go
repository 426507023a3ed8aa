package clrt

import "github.com/pkg/errors"

// Code defined on its own file so that enumer can process it.

// Code is the numeric status of a runtime operation. Zero means success,
// negative values are failures. A failed event stores the Code of the error
// that terminated it, and dependent events inherit that same value.
type Code int32

//go:generate go tool enumer -type=Code errors.go

const (
	ErrInternal Code = iota - 12
	ErrDependencyFailed
	ErrNotImplemented
	ErrResourceExhaustion
	ErrUnsupportedFormat
	ErrOverlappingRegion
	ErrUnbuiltExecutable
	ErrIncompatibleContext
	ErrOutOfBoundsRegion
	ErrInvalidSize
	ErrInvalidArgument
	ErrInvalidHandle
	Success
)

// Error implements the error interface, so a Code can be returned directly
// or wrapped with extra context.
func (i Code) Error() string { return i.String() }

// CodeOf extracts the Code from an error chain. A nil error maps to Success;
// an error that carries no Code maps to ErrInternal.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ErrInternal
}

// errorf builds an error that carries the given Code and a formatted message.
func errorf(code Code, format string, args ...any) error {
	return errors.WithMessagef(code, format, args...)
}
