package processor

import (
	"errors"
	"fmt"
)

// ErrProcessing matches every *ProcessingError via errors.Is.
var ErrProcessing = errors.New("image processing failed")

// Reason distinguishes bad input from the other processing failures.
type Reason string

const (
	ReasonInvalidContentType Reason = "invalid_content_type"
	ReasonInvalidImage       Reason = "invalid_image"
	ReasonUnsupportedFormat  Reason = "unsupported_format"
	ReasonTooLarge           Reason = "too_large"
	ReasonNoVariants         Reason = "no_variants"
)

type ProcessingError struct {
	Reason Reason
	Detail string
	Err    error
}

func newError(reason Reason, err error, format string, args ...any) *ProcessingError {
	return &ProcessingError{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

func ReasonOf(err error) (Reason, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "", false
}
