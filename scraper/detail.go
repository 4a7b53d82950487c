package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/crawler"
	"github.com/shkang-dev/ipo-crawler/models"
	"github.com/shkang-dev/ipo-crawler/parser"
)

// Detail fetches and parses one IPO detail page per identifier.
type Detail struct {
	cfg       *config.Config
	collector *colly.Collector

	handlersOnce sync.Once
}

// NewDetail builds the detail source from cfg.
func NewDetail(cfg *config.Config) (*Detail, error) {
	collector, err := newCollector(cfg)
	if err != nil {
		return nil, err
	}
	return &Detail{cfg: cfg, collector: collector}, nil
}

// WithTransport swaps the HTTP transport, used by tests.
func (d *Detail) WithTransport(rt http.RoundTripper) {
	d.collector.WithTransport(rt)
}

type detailSink struct {
	id    models.Identifier
	stock *models.Stock
	err   error
}

// FetchDetail visits the detail page and assembles a pending record.
// Transient failures are retried with backoff; not-found and parse failures
// are permanent. A politeness delay runs after each successful fetch.
func (d *Detail) FetchDetail(ctx context.Context, id models.Identifier) (*models.Stock, error) {
	d.configureHandlers()

	var lastErr error
	attempts := d.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			if err := wait(ctx, backoff(d.cfg, attempt)); err != nil {
				return nil, err
			}
		}

		stock, err := d.fetchOnce(id)
		if err == nil {
			wait(ctx, d.cfg.Delay)
			return stock, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (d *Detail) fetchOnce(id models.Identifier) (*models.Stock, error) {
	sink := &detailSink{id: id}
	rctx := colly.NewContext()
	rctx.Put(sinkKey, sink)

	reqErr := d.collector.Request(http.MethodGet, string(id), nil, rctx, nil)
	d.collector.Wait()

	// The OnError handler sees the status code; its classification wins over
	// the bare error Request hands back.
	if sink.err != nil {
		return nil, sink.err
	}
	if reqErr != nil {
		return nil, classifyFetchError(reqErr, 0)
	}
	if sink.stock == nil {
		return nil, crawler.ErrParse{Err: errors.New("empty detail page")}
	}
	return sink.stock, nil
}

func (d *Detail) configureHandlers() {
	d.handlersOnce.Do(func() {
		d.collector.OnResponse(func(r *colly.Response) {
			sink, ok := r.Request.Ctx.GetAny(sinkKey).(*detailSink)
			if !ok {
				return
			}
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
			if err != nil {
				sink.err = crawler.ErrParse{Err: err}
				return
			}
			sink.stock, sink.err = parseDetail(doc, sink.id)
		})

		d.collector.OnError(func(r *colly.Response, err error) {
			sink, ok := r.Request.Ctx.GetAny(sinkKey).(*detailSink)
			if !ok {
				return
			}
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			sink.err = classifyFetchError(err, statusCode)
		})
	})
}

// retryable reports whether another attempt can change the outcome.
func retryable(err error) bool {
	var notFound crawler.ErrNotFound
	if errors.As(err, &notFound) {
		return false
	}
	var parse crawler.ErrParse
	return !errors.As(err, &parse)
}

func parseDetail(doc *goquery.Document, id models.Identifier) (*models.Stock, error) {
	name := parser.NormalizeCell(doc.Find("strong.view_tit").First().Text())
	if name == "" {
		name = parser.NormalizeCell(doc.Find("title").First().Text())
	}

	company := doc.Find(`table[summary="기업개요"]`).First()
	offering := doc.Find(`table[summary="공모정보"]`).First()
	schedule := doc.Find(`table[summary="공모청약일정"]`).First()

	listingDate := tableValue(schedule, "신규상장일")
	if listingDate == "N/A" {
		listingDate = tableValue(schedule, "상장일")
	}

	tradableCount, tradablePercent := parseTradable(doc)

	stock := &models.Stock{
		ID:   id,
		Name: name,

		MarketSegment: tableValue(company, "시장구분"),
		Sector:        tableValue(company, "업종"),

		DesiredPriceRange: tableValue(offering, "희망공모가액"),
		Underwriter:       tableValue(offering, "주간사"),

		ListingDate:     listingDate,
		CompetitionRate: parser.NormalizeCompetitionRate(tableValue(schedule, "기관경쟁률")),

		TradableSharesCount:   tradableCount,
		TradableSharesPercent: tradablePercent,

		Status:    models.StatusPending,
		ScrapedAt: time.Now(),
	}

	stock.Revenue, _ = parser.ParseWon(tableValue(company, "매출액"))
	stock.ProfitPreTax, _ = parser.ParseWon(tableValue(company, "법인세비용차감전"))
	stock.NetProfit, _ = parser.ParseWon(tableValue(company, "순이익"))
	stock.Capital, _ = parser.ParseWon(tableValue(company, "자본금"))

	stock.TotalShares, _ = parser.ParseWon(tableValue(offering, "총공모주식수"))
	stock.ParValue, _ = parser.ParseWon(tableValue(offering, "액면가"))
	stock.ConfirmedPrice, _ = parser.ParseWon(tableValue(offering, "확정공모가"))
	stock.OfferingAmount, _ = parser.ParseWon(tableValue(offering, "공모금액"))

	stock.EmpShares, _ = parser.ExtractShareCount(tableValue(schedule, "우리사주조합"))
	stock.InstShares, _ = parser.ExtractShareCount(tableValue(schedule, "기관투자자"))
	stock.RetailShares, _ = parser.ExtractShareCount(tableValue(schedule, "일반청약자"))

	if err := parser.ValidateStock(stock); err != nil {
		return nil, crawler.ErrParse{Err: err}
	}
	return stock, nil
}

// tableValue finds the cell containing key and returns the text of the next
// td sibling, "N/A" when absent.
func tableValue(table *goquery.Selection, key string) string {
	value := "N/A"
	table.Find("td,th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if !strings.Contains(parser.NormalizeCell(cell.Text()), key) {
			return true
		}
		next := cell.NextAllFiltered("td").First()
		if next.Length() == 0 {
			return true
		}
		if text := parser.NormalizeCell(next.Text()); text != "" {
			value = text
			return false
		}
		return true
	})
	return value
}

// parseTradable scans the shareholder table for the tradable-share column
// pair (count, percent) and reads the bottom-most populated row.
func parseTradable(doc *goquery.Document) (string, string) {
	grid := findTradableGrid(doc)
	if grid == nil {
		return "N/A", "N/A"
	}

	col := -1
	for r := 0; r < len(grid) && r < 5 && col < 0; r++ {
		for c, cell := range grid[r] {
			if strings.Contains(cell, "유통가능") {
				col = c
				break
			}
		}
	}
	if col < 0 {
		return "N/A", "N/A"
	}

	for r := len(grid) - 1; r >= 0; r-- {
		row := grid[r]
		if len(row) <= col+1 {
			continue
		}
		count := parser.NormalizeCell(row[col])
		percent := parser.NormalizeCell(row[col+1])
		if count == "" || count == "-" || !hasDigit(count) {
			continue
		}
		return count, percent
	}
	return "N/A", "N/A"
}

func findTradableGrid(doc *goquery.Document) [][]string {
	var grid [][]string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if !strings.Contains(table.Text(), "유통가능") {
			return true
		}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("td,th").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, parser.NormalizeCell(cell.Text()))
			})
			if len(row) > 0 {
				grid = append(grid, row)
			}
		})
		return false
	})
	return grid
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
