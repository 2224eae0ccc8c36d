package wgapple

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	// MissingPrerequisite: toolchain or SDK absent, or below minimum version.
	MissingPrerequisite ErrorKind = iota + 1
	// PreparationFailure: copying the toolchain root failed.
	PreparationFailure
	// BuildFailure: the compiler exited non-zero.
	BuildFailure
	// ValidationFailure: an artifact is missing, empty, has the wrong
	// architectures or lacks expected symbols.
	ValidationFailure
	// MergeFailure: lipo failed or the merged archive is incomplete.
	MergeFailure
	// AssemblyFailure: a variant is malformed or the bundler failed.
	AssemblyFailure
	// VerificationFailure: at least one gate check failed.
	VerificationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case MissingPrerequisite:
		return "missing prerequisite"
	case PreparationFailure:
		return "preparation failure"
	case BuildFailure:
		return "build failure"
	case ValidationFailure:
		return "validation failure"
	case MergeFailure:
		return "merge failure"
	case AssemblyFailure:
		return "assembly failure"
	case VerificationFailure:
		return "verification failure"
	default:
		return "unknown failure"
	}
}

// PipelineError is the error type returned by every stage.
//
// Op names the failing check or operation (e.g. "validate ios-arm64"),
// Path the file or directory involved, if any.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op, path string, err error) error {
	return &PipelineError{Kind: kind, Op: op, Path: path, Err: err}
}

// IsKind reports whether err is (or wraps) a PipelineError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
