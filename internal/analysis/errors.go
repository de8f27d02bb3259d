package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the analysis pipeline. Handlers match on these
// with errors.Is to pick a status code; the concrete error types below
// carry the detail an analyst needs to fix their upload.
var (
	ErrMissingRequiredColumn = errors.New("missing required column")
	ErrMalformedTimestamp    = errors.New("malformed timestamp")
	ErrMalformedValue        = errors.New("malformed value")
	ErrInconsistentAnchor    = errors.New("inconsistent anchor")
	ErrUnsupportedHorizonSet = errors.New("unsupported horizon set")
	ErrUnknownSpendBracket   = errors.New("unknown spend bracket")
	ErrUnknownROASWindow     = errors.New("unknown roas window")
	ErrUnknownHorizon        = errors.New("horizon not configured")
	ErrEmptyDataset          = errors.New("dataset contains no rows")
)

// MissingColumnError reports which required column the upload lacks.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingRequiredColumn }

// MalformedTimestampError identifies the exact cell that failed to
// parse as either an epoch number or a datetime string.
type MalformedTimestampError struct {
	Line   int
	Column string
	Value  string
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("row %d: column %q value %q is neither an epoch number nor a recognized datetime", e.Line, e.Column, e.Value)
}

func (e *MalformedTimestampError) Unwrap() error { return ErrMalformedTimestamp }

// MalformedValueError identifies a value cell that is present but not
// numeric. Absent values are not errors; they normalize to zero.
type MalformedValueError struct {
	Line  int
	Value string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("row %d: value %q is not numeric", e.Line, e.Value)
}

func (e *MalformedValueError) Unwrap() error { return ErrMalformedValue }

// InconsistentAnchorError reports a user whose explicit anchor column
// carries more than one distinct timestamp.
type InconsistentAnchorError struct {
	UserID string
	First  time.Time
	Second time.Time
}

func (e *InconsistentAnchorError) Error() string {
	return fmt.Sprintf("user %q has divergent anchor timestamps %s and %s", e.UserID, e.First.Format(time.RFC3339), e.Second.Format(time.RFC3339))
}

func (e *InconsistentAnchorError) Unwrap() error { return ErrInconsistentAnchor }

// UnsupportedHorizonError reports a max horizon the uplift factor
// table has no entry for.
type UnsupportedHorizonError struct {
	MaxHorizon int
}

func (e *UnsupportedHorizonError) Error() string {
	return fmt.Sprintf("no uplift factors defined for max horizon D%d (supported: D60, D90, D180)", e.MaxHorizon)
}

func (e *UnsupportedHorizonError) Unwrap() error { return ErrUnsupportedHorizonSet }
