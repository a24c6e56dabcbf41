package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the ingestion failure taxonomy
type ErrorKind string

const (
	KindMalformedLine        ErrorKind = "MalformedLine"
	KindSentinelValue        ErrorKind = "SentinelValue"
	KindDuplicateObservation ErrorKind = "DuplicateObservation"
	KindDuplicateStats       ErrorKind = "DuplicateStats"
	KindIOFailure            ErrorKind = "IOFailure"
	KindStoreFailure         ErrorKind = "StoreFailure"
)

var (
	ErrMalformedLine        = errors.New("malformed line")
	ErrSentinelValue        = errors.New("sentinel value")
	ErrDuplicateObservation = errors.New("duplicate observation")
	ErrDuplicateStats       = errors.New("duplicate stats")
	ErrIOFailure            = errors.New("io failure")
	ErrStoreFailure         = errors.New("store failure")
)

var kindErrors = map[ErrorKind]error{
	KindMalformedLine:        ErrMalformedLine,
	KindSentinelValue:        ErrSentinelValue,
	KindDuplicateObservation: ErrDuplicateObservation,
	KindDuplicateStats:       ErrDuplicateStats,
	KindIOFailure:            ErrIOFailure,
	KindStoreFailure:         ErrStoreFailure,
}

// IngestError wraps a failure with the file and line it came from.
// Line is zero when the failure is not tied to a single line.
type IngestError struct {
	Kind ErrorKind
	File string
	Line int
	Err  error
}

// NewIngestError builds an IngestError
func NewIngestError(kind ErrorKind, file string, line int, err error) *IngestError {
	return &IngestError{Kind: kind, File: file, Line: line, Err: err}
}

func (e *IngestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %v", e.Kind, e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.File, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the kind
func (e *IngestError) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// IsTransient reports whether retrying the file may succeed
func (e *IngestError) IsTransient() bool {
	return e.Kind == KindStoreFailure
}

// KindOf extracts the ErrorKind from err, or "" when it carries none
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, ErrMalformedLine) {
		return KindMalformedLine
	}
	return ""
}
