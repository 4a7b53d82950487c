package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shkang-dev/ipo-crawler/models"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net failure" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FailureReason
	}{
		{"nil", nil, models.ReasonUnknown},
		{"not found", ErrNotFound{Err: errors.New("404")}, models.ReasonNotFound},
		{"parse", ErrParse{Err: errors.New("bad html")}, models.ReasonParseError},
		{"timeout", ErrTimeout{Err: errors.New("deadline")}, models.ReasonTimeout},
		{"wrapped not found", fmt.Errorf("fetch: %w", ErrNotFound{Err: errors.New("404")}), models.ReasonNotFound},
		{"wrapped parse", fmt.Errorf("fetch: %w", ErrParse{Err: errors.New("bad html")}), models.ReasonParseError},
		{"deadline exceeded", context.DeadlineExceeded, models.ReasonTimeout},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), models.ReasonTimeout},
		{"net timeout", fakeNetError{timeout: true}, models.ReasonTimeout},
		{"net non-timeout", fakeNetError{timeout: false}, models.ReasonUnknown},
		{"plain error", errors.New("connection reset"), models.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err); got != tt.want {
				t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	inner := errors.New("inner")

	tests := []struct {
		name string
		err  error
	}{
		{"configuration", &ConfigurationError{Err: inner}},
		{"source unavailable", &SourceUnavailableError{Month: 3, Err: inner}},
		{"not found", ErrNotFound{Err: inner}},
		{"parse", ErrParse{Err: inner}},
		{"timeout", ErrTimeout{Err: inner}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, inner) {
				t.Errorf("%v does not unwrap to the inner error", tt.err)
			}
			if tt.err.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestSourceUnavailableNamesMonth(t *testing.T) {
	err := &SourceUnavailableError{Month: 7, Err: errors.New("http status 500")}
	if got := err.Error(); got != "calendar unavailable for month 7: http status 500" {
		t.Errorf("Error() = %q", got)
	}
}
