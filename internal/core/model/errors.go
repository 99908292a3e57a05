package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks structurally inconsistent calls, detected before any network activity.
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrArityMismatch      = fmt.Errorf("%w: arity mismatch", ErrInvalidArgument)
	ErrEmptyParameterList = fmt.Errorf("%w: empty parameter list", ErrInvalidArgument)

	// ErrDecode marks payloads that do not match the shape of the query that produced them.
	ErrDecode          = errors.New("decode error")
	ErrSchemaInference = fmt.Errorf("%w: schema inference", ErrDecode)
)

func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func Decodef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

type FileWriteError struct {
	Path string
	Err  error
}

func (e *FileWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *FileWriteError) Unwrap() error { return e.Err }
