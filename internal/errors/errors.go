package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind categorizes a pipeline error by the boundary it may not cross.
type Kind string

const (
	// KindExtraction covers a single page or image that could not be read.
	KindExtraction Kind = "extraction"
	// KindGeneration covers a failed description call.
	KindGeneration Kind = "generation"
	// KindMerge covers a malformed interchange row.
	KindMerge Kind = "merge"
	// KindFatal aborts the whole run.
	KindFatal Kind = "fatal"
)

// Error is a categorized pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can test errors.Is(err, errors.Fatal).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Extraction = &Error{Kind: KindExtraction}
	Generation = &Error{Kind: KindGeneration}
	Merge      = &Error{Kind: KindMerge}
	Fatal      = &Error{Kind: KindFatal}
)

func NewExtractionError(op string, err error) *Error {
	return &Error{Kind: KindExtraction, Op: op, Err: err}
}

func NewGenerationError(op string, err error) *Error {
	return &Error{Kind: KindGeneration, Op: op, Err: err}
}

func NewMergeError(op string, err error) *Error {
	return &Error{Kind: KindMerge, Op: op, Err: err}
}

func NewFatalError(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// IsFatal reports whether err should abort the run.
func IsFatal(err error) bool {
	return stderrors.Is(err, Fatal)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
