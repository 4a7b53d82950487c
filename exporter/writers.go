// Package exporter persists finished scrape reports as Excel, CSV or JSONL
// files.
package exporter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shkang-dev/ipo-crawler/crawler"
	"github.com/shkang-dev/ipo-crawler/models"
)

// ReportWriter is the output contract: it consumes frozen reports and never
// mutates them.
type ReportWriter interface {
	crawler.Exporter
	Close() error
	Validate() error
}

var csvHeader = []string{
	"id", "name", "market_segment", "sector",
	"revenue", "profit_pre_tax", "net_profit", "capital",
	"total_shares", "par_value", "desired_price_range", "confirmed_price",
	"offering_amount", "underwriter",
	"listing_date", "competition_rate", "emp_shares", "inst_shares", "retail_shares",
	"tradable_shares", "tradable_percent",
	"open", "high", "low", "close", "growth_rate",
	"scraped_at",
}

func csvRecord(s *models.Stock) []string {
	return []string{
		string(s.ID),
		s.Name,
		s.MarketSegment,
		s.Sector,
		strconv.FormatInt(s.Revenue, 10),
		strconv.FormatInt(s.ProfitPreTax, 10),
		strconv.FormatInt(s.NetProfit, 10),
		strconv.FormatInt(s.Capital, 10),
		strconv.FormatInt(s.TotalShares, 10),
		strconv.FormatInt(s.ParValue, 10),
		s.DesiredPriceRange,
		strconv.FormatInt(s.ConfirmedPrice, 10),
		strconv.FormatInt(s.OfferingAmount, 10),
		s.Underwriter,
		s.ListingDate,
		s.CompetitionRate,
		strconv.FormatInt(s.EmpShares, 10),
		strconv.FormatInt(s.InstShares, 10),
		strconv.FormatInt(s.RetailShares, 10),
		s.TradableSharesCount,
		s.TradableSharesPercent,
		strconv.FormatInt(s.OpenPrice, 10),
		strconv.FormatInt(s.HighPrice, 10),
		strconv.FormatInt(s.LowPrice, 10),
		strconv.FormatInt(s.ClosePrice, 10),
		strconv.FormatFloat(s.GrowthRate, 'f', 2, 64),
		s.ScrapedAt.Format(time.RFC3339),
	}
}

// CSVWriter writes report records to CSV. The file starts with a UTF-8 BOM
// so Excel renders the Korean columns correctly.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write bom: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Export appends the report's records to the CSV output.
func (cw *CSVWriter) Export(report *models.ScrapeReport) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, stock := range report.Stocks {
		if err := cw.writer.Write(csvRecord(stock)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Export appends the report's records in JSONL format.
func (jw *JSONWriter) Export(report *models.ScrapeReport) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, stock := range report.Stocks {
		if err := jw.encoder.Encode(stock); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
