package models

import "time"

// FailureReason labels why enriching a single identifier failed.
type FailureReason string

const (
	ReasonNotFound   FailureReason = "not_found"
	ReasonParseError FailureReason = "parse_error"
	ReasonTimeout    FailureReason = "timeout"
	ReasonUnknown    FailureReason = "unknown"
)

// Failure records one identifier that could not be enriched.
type Failure struct {
	ID     Identifier    `json:"id"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// MonthFailure records a month whose calendar listing was unavailable.
type MonthFailure struct {
	Month  int    `json:"month"`
	Detail string `json:"detail"`
}

// ScrapeReport is the aggregated outcome of one orchestration run. It is
// assembled once when the run finishes and not mutated afterwards; every
// identifier yielded by the calendar appears in exactly one of Stocks or
// Failures.
type ScrapeReport struct {
	Year   int   `json:"year"`
	Months []int `json:"months"`

	Stocks   []*Stock  `json:"stocks"`
	Failures []Failure `json:"failures"`

	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	Duplicates    int            `json:"duplicates"`
	MonthFailures []MonthFailure `json:"month_failures,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Duration reports the wall-clock time of the run.
func (r *ScrapeReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
