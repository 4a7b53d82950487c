// Package crawler drives the calendar traversal, detail enrichment and report
// aggregation workflow. It only talks to its collaborators through the port
// interfaces below; adapters live elsewhere.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/dates"
	"github.com/shkang-dev/ipo-crawler/models"
)

// MinYear is the oldest year a run accepts.
const MinYear = 1900

// CalendarSource lists the identifiers announced for a calendar month. The
// sequence must be finite and re-invocable for the same year/month. An error
// means the month could not be listed at all; the run records it and
// continues.
type CalendarSource interface {
	ListIdentifiers(ctx context.Context, year, month int) ([]models.Identifier, error)
}

// DetailSource produces a populated record for one identifier. Every failure
// mode comes back as an error value classified by Reason; no outcome aborts
// the run.
type DetailSource interface {
	FetchDetail(ctx context.Context, id models.Identifier) (*models.Stock, error)
}

// Enricher adds best-effort data (listing-day quotes) to a fetched record.
// Implementations return the record unchanged when they cannot enrich it.
type Enricher interface {
	Enrich(ctx context.Context, stock *models.Stock) *models.Stock
}

// Exporter consumes a finished report. Implementations must not mutate it.
type Exporter interface {
	Export(report *models.ScrapeReport) error
}

// Orchestrator runs the scrape workflow against injected sources.
type Orchestrator struct {
	cfg      *config.Config
	calendar CalendarSource
	details  DetailSource
	enricher Enricher
	Metrics  *Metrics
}

// New builds an orchestrator. The enricher may be nil.
func New(cfg *config.Config, calendar CalendarSource, details DetailSource, enricher Enricher) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if calendar == nil {
		return nil, fmt.Errorf("calendar source is required")
	}
	if details == nil {
		return nil, fmt.Errorf("detail source is required")
	}

	return &Orchestrator{
		cfg:      cfg,
		calendar: calendar,
		details:  details,
		enricher: enricher,
		Metrics:  NewMetrics(),
	}, nil
}

// Run scrapes the requested months of one year and returns the aggregated
// report. Months are processed in ascending order; an identifier yielded by
// more than one month is enriched only on its first occurrence. Cancellation
// is honoured between months and between identifiers, returning the partial
// report together with the context error.
func (o *Orchestrator) Run(ctx context.Context, year int, months []int) (*models.ScrapeReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	normalized, err := normalizeMonths(year, months)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	state := newRunState()

	for _, month := range normalized {
		if ctx.Err() != nil {
			break
		}

		ids, err := o.calendar.ListIdentifiers(ctx, year, month)
		if err != nil {
			slog.Warn("calendar month unavailable",
				slog.Int("year", year),
				slog.Int("month", month),
				slog.Any("error", err),
			)
			state.monthFailures = append(state.monthFailures, models.MonthFailure{
				Month:  month,
				Detail: err.Error(),
			})
			o.Metrics.IncSourceFailure()
			o.Metrics.IncMonth("unavailable")
			continue
		}

		fresh := state.dedupe(ids, o.Metrics)
		for _, out := range o.enrichBatch(ctx, fresh) {
			if !out.done {
				continue
			}
			o.record(state, out)
		}

		o.Metrics.IncMonth("ok")
		slog.Info("month processed",
			slog.Int("year", year),
			slog.Int("month", month),
			slog.Int("listed", len(ids)),
			slog.Int("enriched", len(fresh)),
		)
	}

	return state.report(year, normalized, start), ctx.Err()
}

// RunRange scrapes every year from startYear through ref's year and returns
// one report per year. On cancellation the reports accumulated so far are
// returned with the context error.
func (o *Orchestrator) RunRange(ctx context.Context, startYear int, ref time.Time) ([]*models.ScrapeReport, error) {
	ranges := dates.Ranges(startYear, ref)
	if len(ranges) == 0 {
		return nil, configErrorf("start year %d is after reference year %d", startYear, ref.Year())
	}

	reports := make([]*models.ScrapeReport, 0, len(ranges))
	for _, r := range ranges {
		report, err := o.Run(ctx, r.Year, r.Months)
		if err != nil {
			if report != nil {
				reports = append(reports, report)
			}
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

type outcome struct {
	id    models.Identifier
	stock *models.Stock
	err   error
	done  bool
}

// enrichBatch fetches details for the given identifiers, concurrently when
// configured, and always returns outcomes in yield order. Completion order
// never reaches the report.
func (o *Orchestrator) enrichBatch(ctx context.Context, ids []models.Identifier) []outcome {
	outcomes := make([]outcome, len(ids))
	for i, id := range ids {
		outcomes[i].id = id
	}

	workers := o.cfg.Parallelism
	if workers <= 1 || len(ids) <= 1 {
		for i := range outcomes {
			if ctx.Err() != nil {
				break
			}
			o.enrichOne(ctx, &outcomes[i])
		}
		return outcomes
	}

	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o.enrichOne(ctx, &outcomes[i])
			}
		}()
	}

	for i := range outcomes {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) enrichOne(ctx context.Context, out *outcome) {
	if ctx.Err() != nil {
		return
	}

	begin := time.Now()
	stock, err := o.details.FetchDetail(ctx, out.id)
	o.Metrics.ObserveEnrich(time.Since(begin))

	out.done = true
	if err != nil {
		out.err = err
		return
	}
	if stock == nil {
		out.err = ErrParse{Err: errors.New("detail source returned no record")}
		return
	}
	if o.enricher != nil {
		stock = o.enricher.Enrich(ctx, stock)
	}
	out.stock = stock
}

func (o *Orchestrator) record(state *runState, out outcome) {
	state.attempted++

	if out.err != nil || out.stock == nil {
		reason := Reason(out.err)
		detail := ""
		if out.err != nil {
			detail = out.err.Error()
		}
		state.failures = append(state.failures, models.Failure{
			ID:     out.id,
			Reason: reason,
			Detail: detail,
		})
		state.failed++
		o.Metrics.IncIdentifier("failed")
		slog.Debug("identifier failed",
			slog.String("id", string(out.id)),
			slog.String("reason", string(reason)),
		)
		return
	}

	if err := out.stock.MarkEnriched(); err != nil {
		slog.Debug("record already in terminal status", slog.String("id", string(out.id)))
	}
	state.stocks = append(state.stocks, out.stock)
	state.succeeded++
	o.Metrics.IncIdentifier("succeeded")
}

type runState struct {
	seen          map[models.Identifier]struct{}
	stocks        []*models.Stock
	failures      []models.Failure
	monthFailures []models.MonthFailure
	attempted     int
	succeeded     int
	failed        int
	duplicates    int
}

func newRunState() *runState {
	return &runState{seen: make(map[models.Identifier]struct{})}
}

// dedupe keeps the first occurrence of every identifier across the whole run.
// Dropped repeats never reach the detail source and never touch the counters.
func (st *runState) dedupe(ids []models.Identifier, m *Metrics) []models.Identifier {
	fresh := make([]models.Identifier, 0, len(ids))
	for _, id := range ids {
		if _, ok := st.seen[id]; ok {
			st.duplicates++
			m.IncDuplicate()
			continue
		}
		st.seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

func (st *runState) report(year int, months []int, start time.Time) *models.ScrapeReport {
	return &models.ScrapeReport{
		Year:          year,
		Months:        months,
		Stocks:        st.stocks,
		Failures:      st.failures,
		Attempted:     st.attempted,
		Succeeded:     st.succeeded,
		Failed:        st.failed,
		Duplicates:    st.duplicates,
		MonthFailures: st.monthFailures,
		StartTime:     start,
		EndTime:       time.Now(),
	}
}

func normalizeMonths(year int, months []int) ([]int, error) {
	if year < MinYear {
		return nil, configErrorf("year %d precedes %d", year, MinYear)
	}
	if len(months) == 0 {
		return nil, configErrorf("no months requested")
	}

	unique := make(map[int]struct{}, len(months))
	for _, month := range months {
		if month < 1 || month > 12 {
			return nil, configErrorf("month %d out of range", month)
		}
		unique[month] = struct{}{}
	}

	normalized := make([]int, 0, len(unique))
	for month := range unique {
		normalized = append(normalized, month)
	}
	sort.Ints(normalized)
	return normalized, nil
}
