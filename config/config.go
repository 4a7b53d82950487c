package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	CalendarURL      string // printf template taking year and month
	MarketDataURL    string // quote API base URL; empty disables enrichment
	StartYear        int
	DayLimit         int // cap on calendar day for the current month, 0 = none
	Parallelism      int
	Delay            time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	OutputFile       string
	OutputFormat     string // xlsx, csv, json, or dual
	UserAgent        string
	TickerCacheSize  int
	MetricsAddr      string
	Verbose          bool
	RespectRobotsTxt bool
}

// DefaultConfig returns conservative defaults for the IPO calendar target.
func DefaultConfig() *Config {
	return &Config{
		CalendarURL:      "http://www.ipostock.co.kr/sub03/ipo06.asp?str4=%d&str5=%d",
		MarketDataURL:    "",
		StartYear:        2020,
		DayLimit:         0,
		Parallelism:      1,
		Delay:            300 * time.Millisecond,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		OutputFile:       "output/ipo.xlsx",
		OutputFormat:     "xlsx",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		TickerCacheSize:  512,
		MetricsAddr:      "",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// CalendarHost returns the host of the calendar URL template.
func (c *Config) CalendarHost() (string, error) {
	sample := fmt.Sprintf(c.CalendarURL, 2000, 1)
	parsed, err := url.Parse(sample)
	if err != nil {
		return "", fmt.Errorf("invalid calendar URL: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("calendar URL must include a host")
	}
	return parsed.Host, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CalendarURL == "" {
		return fmt.Errorf("calendar URL cannot be empty")
	}
	if !strings.Contains(c.CalendarURL, "%d") {
		return fmt.Errorf("calendar URL must contain year/month placeholders")
	}
	if _, err := c.CalendarHost(); err != nil {
		return err
	}

	if c.MarketDataURL != "" {
		parsed, err := url.Parse(c.MarketDataURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("market data URL must include a host")
		}
	}

	if c.StartYear < 1900 {
		return fmt.Errorf("start year must be 1900 or later")
	}
	if c.DayLimit < 0 || c.DayLimit > 31 {
		return fmt.Errorf("day limit must be between 0 and 31")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "xlsx", "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be xlsx, csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.TickerCacheSize <= 0 {
		return fmt.Errorf("ticker cache size must be positive")
	}

	return nil
}
