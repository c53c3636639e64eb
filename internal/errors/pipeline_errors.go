package errors

import (
	"errors"
	"fmt"
)

// MalformedLogError reports a log line that matches no known record grammar
type MalformedLogError struct {
	Path   string
	Line   int
	Text   string
	Reason string
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("malformed log line %s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Text)
}

// IncompleteTrialError reports a start marker that was never closed
type IncompleteTrialError struct {
	Path      string
	TrialID   string
	StartLine int
}

func (e *IncompleteTrialError) Error() string {
	return fmt.Sprintf("incomplete trial %q in %s: start marker at line %d has no end marker",
		e.TrialID, e.Path, e.StartLine)
}

// SegmentationError reports out-of-order or duplicate trial markers
type SegmentationError struct {
	Path   string
	Line   int
	Reason string
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation error %s:%d: %s", e.Path, e.Line, e.Reason)
}

// ProcessingError reports a trace that cannot be processed
type ProcessingError struct {
	TrialID string
	Trace   string
	Reason  string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing trial %q trace %q: %s", e.TrialID, e.Trace, e.Reason)
}

// AssemblyError reports a schema conflict across trials
type AssemblyError struct {
	Column string
	Reason string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembling column %q: %s", e.Column, e.Reason)
}

// NoSuchColumnError reports access to a column the dataset does not have
type NoSuchColumnError struct {
	Column string
}

func (e *NoSuchColumnError) Error() string {
	return fmt.Sprintf("no such column: %q", e.Column)
}

// ConversionError reports an EDF or BDF file the converter cannot read
type ConversionError struct {
	Path   string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s: %s", e.Path, e.Reason)
}

// ReadError wraps an I/O failure while reading an input file.
// It is the only retryable error class.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// RecordedError is a file failure read back from a cached parse. It keeps
// the original classification and message but not the original value.
type RecordedError struct {
	Type    ErrorType
	Message string
}

func (e *RecordedError) Error() string {
	return e.Message
}

// IsRetryable reports whether err is a transient read failure
func IsRetryable(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}

// TypeOf classifies err into the application error taxonomy.
// Unknown errors classify as an empty type.
func TypeOf(err error) ErrorType {
	var (
		malformed  *MalformedLogError
		incomplete *IncompleteTrialError
		segment    *SegmentationError
		processing *ProcessingError
		assembly   *AssemblyError
		column     *NoSuchColumnError
		read       *ReadError
		conversion *ConversionError
		recorded   *RecordedError
		app        *AppError
	)
	switch {
	case errors.As(err, &malformed):
		return ErrTypeMalformedLog
	case errors.As(err, &incomplete):
		return ErrTypeIncompleteTrial
	case errors.As(err, &segment):
		return ErrTypeSegmentation
	case errors.As(err, &processing):
		return ErrTypeProcessing
	case errors.As(err, &assembly):
		return ErrTypeAssembly
	case errors.As(err, &column):
		return ErrTypeNoSuchColumn
	case errors.As(err, &read):
		return ErrTypeStorage
	case errors.As(err, &conversion):
		return ErrTypeConversion
	case errors.As(err, &recorded):
		return recorded.Type
	case errors.As(err, &app):
		return app.Type
	default:
		return ""
	}
}
