// Package enrich adds listing-day market data to scraped records.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/models"
)

// Quote holds one day of OHLC prices.
type Quote struct {
	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`
}

// MarketClient talks to the quote API.
type MarketClient struct {
	http *resty.Client
}

// NewMarketClient builds a client for cfg.MarketDataURL.
func NewMarketClient(cfg *config.Config) *MarketClient {
	client := resty.New().
		SetBaseURL(cfg.MarketDataURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)
	return &MarketClient{http: client}
}

// HTTPClient exposes the underlying client, used by tests.
func (c *MarketClient) HTTPClient() *resty.Client {
	return c.http
}

// Ticker resolves a listing name to its ticker code. An empty ticker with a
// nil error means the name is unknown to the API.
func (c *MarketClient) Ticker(ctx context.Context, name string) (string, error) {
	var out struct {
		Ticker string `json:"ticker"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetResult(&out).
		Get("/tickers")
	if err != nil {
		return "", fmt.Errorf("ticker lookup for %q: %w", name, err)
	}
	if resp.StatusCode() == 404 {
		return "", nil
	}
	if resp.IsError() {
		return "", fmt.Errorf("ticker lookup for %q: status %d", name, resp.StatusCode())
	}
	return out.Ticker, nil
}

// OHLC fetches the quote for a ticker on the given day. Returns nil with a
// nil error when the API has no data for that day.
func (c *MarketClient) OHLC(ctx context.Context, ticker string, day time.Time) (*Quote, error) {
	var out Quote
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ticker", ticker).
		SetQueryParam("date", day.Format("2006-01-02")).
		SetResult(&out).
		Get("/ohlc")
	if err != nil {
		return nil, fmt.Errorf("ohlc for %s: %w", ticker, err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ohlc for %s: status %d", ticker, resp.StatusCode())
	}
	return &out, nil
}

// PriceEnricher fills OHLC prices and the growth rate on records whose
// listing day has a quote. Every miss is a skip, never a failure.
type PriceEnricher struct {
	client  *MarketClient
	tickers *lru.Cache[string, string]
}

// NewPriceEnricher builds the enricher with an LRU cache for ticker lookups.
func NewPriceEnricher(client *MarketClient, cacheSize int) (*PriceEnricher, error) {
	if client == nil {
		return nil, fmt.Errorf("market client is required")
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("ticker cache: %w", err)
	}
	return &PriceEnricher{client: client, tickers: cache}, nil
}

// Enrich resolves the ticker, fetches listing-day OHLC and computes the
// growth rate against the confirmed offering price. The record is returned
// unchanged when any step has no data.
func (e *PriceEnricher) Enrich(ctx context.Context, stock *models.Stock) *models.Stock {
	if stock == nil || strings.TrimSpace(stock.Name) == "" {
		return stock
	}

	day, ok := parseListingDate(stock.ListingDate)
	if !ok {
		slog.Debug("enrich skipped: no listing date", slog.String("name", stock.Name))
		return stock
	}

	ticker, err := e.ticker(ctx, stock.Name)
	if err != nil {
		slog.Warn("ticker lookup failed", slog.String("name", stock.Name), slog.Any("error", err))
		return stock
	}
	if ticker == "" {
		slog.Debug("enrich skipped: unknown ticker", slog.String("name", stock.Name))
		return stock
	}

	quote, err := e.client.OHLC(ctx, ticker, day)
	if err != nil {
		slog.Warn("ohlc fetch failed", slog.String("ticker", ticker), slog.Any("error", err))
		return stock
	}
	if quote == nil {
		slog.Debug("enrich skipped: no quote", slog.String("ticker", ticker))
		return stock
	}

	stock.OpenPrice = quote.Open
	stock.HighPrice = quote.High
	stock.LowPrice = quote.Low
	stock.ClosePrice = quote.Close
	stock.HasQuote = true

	if stock.ConfirmedPrice > 0 {
		rate := (float64(quote.Close) - float64(stock.ConfirmedPrice)) / float64(stock.ConfirmedPrice) * 100
		stock.GrowthRate = math.Round(rate*100) / 100
	}
	return stock
}

func (e *PriceEnricher) ticker(ctx context.Context, name string) (string, error) {
	if ticker, ok := e.tickers.Get(name); ok {
		return ticker, nil
	}
	ticker, err := e.client.Ticker(ctx, name)
	if err != nil {
		return "", err
	}
	if ticker != "" {
		e.tickers.Add(name, ticker)
	}
	return ticker, nil
}

// parseListingDate accepts the site's "2024.03.15" format and the dashed
// variant.
func parseListingDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ".", "-"))
	if text == "" || text == "N/A" {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", text)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
