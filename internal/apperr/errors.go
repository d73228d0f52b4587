// Package apperr defines the error taxonomy shared by every layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMalformedContent   = errors.New("malformed content")
	ErrCannotDeleteActive = errors.New("cannot delete active profile")
	ErrSourceMissing      = errors.New("source missing")
	ErrFileLocked         = errors.New("file locked")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrIO                 = errors.New("i/o failure")
	ErrBackup             = errors.New("backup failed")
	ErrWrite              = errors.New("write failed")
)

// MalformedError reports content that does not parse as a structured document.
// Line and Column are 1-based; zero means the position is unknown.
type MalformedError struct {
	Line   int
	Column int
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed content at line %d, column %d: %s", e.Line, e.Column, e.Reason)
	}
	return "malformed content: " + e.Reason
}

// Is lets errors.Is(err, ErrMalformedContent) match.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedContent
}

// StepError is returned by every failed apply or restore transition. It names
// the step that failed and the file involved. The target file is left in its
// prior state whenever TargetUnchanged is set.
type StepError struct {
	Step            string
	Path            string
	Kind            error
	Err             error
	TargetUnchanged bool
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s failed at step %s", e.Path, e.Step)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.TargetUnchanged {
		msg += " (target file left unchanged)"
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}
