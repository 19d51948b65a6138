// Package routererr defines the sentinel error kinds and stage-tagged
// wrapper used across the SmartRouter pipeline (spec.md §7).
package routererr

import (
	"errors"
	"fmt"
)

// Kind is one entry of the error taxonomy.
type Kind string

const (
	KindEmptyText        Kind = "EmptyText"
	KindTooShort         Kind = "TooShort"
	KindTooLong          Kind = "TooLong"
	KindLowQuality       Kind = "LowQuality"
	KindBannedPattern    Kind = "BannedPattern"
	KindNotStudyContent  Kind = "NotStudyContent"
	KindDistillTimeout   Kind = "DistillTimeout"
	KindDistillQuota     Kind = "DistillQuota"
	KindDistillMalformed Kind = "DistillMalformed"
	KindDistillUpstream  Kind = "DistillUpstream"
	KindEmbedUpstream    Kind = "EmbedUpstream"
	KindEmbedQuota       Kind = "EmbedQuota"
	KindVectorDimension  Kind = "VectorDimension"
	KindVectorConnection Kind = "VectorConnection"
	KindVectorNotFound   Kind = "VectorNotFound"
	KindVectorBackend    Kind = "VectorBackend"
	KindCentroidInsufficientData Kind = "CentroidInsufficientData"
	KindContextFiltering Kind = "ContextFiltering"
	KindScheduleIO       Kind = "ScheduleIO"
	KindBudget           Kind = "Budget"
)

// Error is a taxonomy-tagged error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs a taxonomy error around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err carries the given Kind, following wrapped errors.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// StageError wraps an error with the pipeline stage name in which it
// occurred, so a route either returns a fully-formed decision or fails
// with a single stage-tagged error (spec.md §7 propagation policy).
type StageError struct {
	Stage string
	Err   error
}

func (s *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", s.Stage, s.Err)
}

func (s *StageError) Unwrap() error { return s.Err }

// Stage wraps err (if non-nil) with the given stage name.
func Stage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
