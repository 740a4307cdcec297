package domain

import (
	"errors"
	"fmt"
)

var (
	// Per-file parse failures. Recoverable by re-upload; never abort a batch.
	ErrUnrecognizedFormat = errors.New("unrecognized report format")
	ErrUnparsableDate     = errors.New("unparsable report date")
	ErrMalformedContent   = errors.New("malformed report content")

	ErrAlertNotFound  = errors.New("alert not found")
	ErrReportNotFound = errors.New("report file not found")
	ErrDayNotComputed = errors.New("day not computed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsParseError reports whether err belongs to the per-file parse taxonomy.
func IsParseError(err error) bool {
	return IsKind(err, ErrUnrecognizedFormat) ||
		IsKind(err, ErrUnparsableDate) ||
		IsKind(err, ErrMalformedContent)
}
