package x

// Failures of a pipeline invocation are classified into three kinds:
// (1) ErrInput, the scan directory or its slices cannot form a volume.
// (2) ErrCalibration, the rescale coefficients are missing.
// (3) ErrExtraction, no isosurface exists at the requested threshold.
// Use the *Errorf constructors to create a classified error and the *Wrapf
// variants when an underlying library error should be kept as the cause.
// Classification is checked with errors.Is.

import (
	stderrors "errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var (
	ErrInput       = stderrors.New("input error")
	ErrCalibration = stderrors.New("calibration error")
	ErrExtraction  = stderrors.New("extraction error")
)

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

func newKind(kind, cause error, format string, args ...interface{}) error {
	return errors.WithStack(&kindError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}

// InputErrorf returns a new ErrInput error with a stack trace.
func InputErrorf(format string, args ...interface{}) error {
	return newKind(ErrInput, nil, format, args...)
}

// InputWrapf classifies err as ErrInput, keeping it as the cause.
func InputWrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return newKind(ErrInput, err, format, args...)
}

// CalibrationErrorf returns a new ErrCalibration error with a stack trace.
func CalibrationErrorf(format string, args ...interface{}) error {
	return newKind(ErrCalibration, nil, format, args...)
}

// ExtractionErrorf returns a new ErrExtraction error with a stack trace.
func ExtractionErrorf(format string, args ...interface{}) error {
	return newKind(ErrExtraction, nil, format, args...)
}

// Kind returns the short name of the error class, or "" if unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrCalibration):
		return "calibration"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	}
	return ""
}

// Check logs fatal if err != nil.
func Check(err error) {
	if err != nil {
		glog.Fatalf("%+v", errors.Wrap(err, ""))
	}
}
