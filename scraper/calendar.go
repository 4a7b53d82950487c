package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/crawler"
	"github.com/shkang-dev/ipo-crawler/models"
	"github.com/shkang-dev/ipo-crawler/parser"
)

const sinkKey = "sink"

// Calendar lists IPO detail links from the month calendar pages. SPAC
// entries are filtered out before they reach the orchestrator.
type Calendar struct {
	cfg       *config.Config
	collector *colly.Collector

	handlersOnce sync.Once
	now          func() time.Time

	spacFiltered int64
}

// NewCalendar builds the calendar source from cfg.
func NewCalendar(cfg *config.Config) (*Calendar, error) {
	collector, err := newCollector(cfg)
	if err != nil {
		return nil, err
	}
	return &Calendar{
		cfg:       cfg,
		collector: collector,
		now:       time.Now,
	}, nil
}

// WithTransport swaps the HTTP transport, used by tests.
func (c *Calendar) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// SpacFiltered reports how many SPAC entries were dropped so far.
func (c *Calendar) SpacFiltered() int64 {
	return atomic.LoadInt64(&c.spacFiltered)
}

type calendarSink struct {
	dayLimit int
	seen     map[models.Identifier]struct{}
	ids      []models.Identifier
	err      error
}

func (s *calendarSink) add(id models.Identifier) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// ListIdentifiers fetches the calendar page for year/month and returns the
// detail-page URLs in document order. Each call re-fetches the page, so the
// sequence is restartable.
func (c *Calendar) ListIdentifiers(ctx context.Context, year, month int) ([]models.Identifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.configureHandlers()

	sink := &calendarSink{
		dayLimit: c.dayLimitFor(year, month),
		seen:     make(map[models.Identifier]struct{}),
	}
	rctx := colly.NewContext()
	rctx.Put(sinkKey, sink)

	url := fmt.Sprintf(c.cfg.CalendarURL, year, month)
	reqErr := c.collector.Request(http.MethodGet, url, nil, rctx, nil)
	c.collector.Wait()

	if sink.err != nil {
		return nil, &crawler.SourceUnavailableError{Month: month, Err: sink.err}
	}
	if reqErr != nil {
		return nil, &crawler.SourceUnavailableError{Month: month, Err: reqErr}
	}
	return sink.ids, nil
}

func (c *Calendar) configureHandlers() {
	c.handlersOnce.Do(func() {
		c.collector.OnHTML("tr", func(e *colly.HTMLElement) {
			sink, ok := e.Request.Ctx.GetAny(sinkKey).(*calendarSink)
			if !ok {
				return
			}

			day, _ := strconv.Atoi(parser.NormalizeCell(e.ChildText("td.day")))
			if sink.dayLimit > 0 && day > sink.dayLimit {
				return
			}

			e.ForEach(`a[href*="code="]`, func(_ int, a *colly.HTMLElement) {
				name := parser.NormalizeCell(a.Text)
				if isSpac(name) {
					atomic.AddInt64(&c.spacFiltered, 1)
					return
				}
				href := a.Request.AbsoluteURL(a.Attr("href"))
				if href == "" {
					return
				}
				sink.add(models.Identifier(href))
			})
		})

		c.collector.OnError(func(r *colly.Response, err error) {
			sink, ok := r.Request.Ctx.GetAny(sinkKey).(*calendarSink)
			if !ok {
				return
			}
			sink.err = classifyFetchError(err, r.StatusCode)
		})
	})
}

// dayLimitFor applies the configured day cap only to the month that is still
// in progress; finished months always list in full.
func (c *Calendar) dayLimitFor(year, month int) int {
	if c.cfg.DayLimit <= 0 {
		return 0
	}
	now := c.now()
	if year == now.Year() && month == int(now.Month()) {
		return c.cfg.DayLimit
	}
	return 0
}

func isSpac(name string) bool {
	if strings.Contains(name, "스팩") {
		return true
	}
	return strings.Contains(strings.ToUpper(name), "SPAC")
}
