package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/shkang-dev/ipo-crawler/models"
)

// ConfigurationError indicates invalid run parameters. It is the only error
// surfaced before any source activity.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Errorf("configuration: %w", e.Err).Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// SourceUnavailableError indicates the calendar could not be listed for a
// month. Month-scoped and non-fatal: the run logs it and moves on.
type SourceUnavailableError struct {
	Month int
	Err   error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Errorf("calendar unavailable for month %d: %w", e.Month, e.Err).Error()
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a detail page that does not exist (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrParse indicates a detail page that loaded but could not be understood.
type ErrParse struct {
	Err error
}

func (e ErrParse) Error() string {
	return fmt.Errorf("parse_error: %w", e.Err).Error()
}

func (e ErrParse) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a timeout while fetching a page.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// Reason maps an error returned by a DetailSource to a failure reason for the
// report. Unrecognised errors collapse to ReasonUnknown.
func Reason(err error) models.FailureReason {
	if err == nil {
		return models.ReasonUnknown
	}

	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return models.ReasonNotFound
	}
	var parse ErrParse
	if errors.As(err, &parse) {
		return models.ReasonParseError
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return models.ReasonTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ReasonTimeout
	}

	return models.ReasonUnknown
}
