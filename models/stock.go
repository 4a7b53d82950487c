// Package models defines data structures for the crawler.
package models

import "time"

// Identifier is the stable key naming one listing: the absolute URL of its
// detail page.
type Identifier string

// EnrichmentStatus tracks the lifecycle of a Stock record.
type EnrichmentStatus int

const (
	StatusPending EnrichmentStatus = iota
	StatusEnriched
	StatusFailed
)

func (s EnrichmentStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEnriched:
		return "enriched"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stock represents one IPO listing assembled from the calendar and its detail
// page. Numeric fields hold zero when the source page shows no value.
type Stock struct {
	ID   Identifier `csv:"id" json:"id"`
	Name string     `csv:"name" json:"name"`

	MarketSegment string `csv:"market_segment" json:"market_segment"`
	Sector        string `csv:"sector" json:"sector"`
	Revenue       int64  `csv:"revenue" json:"revenue"`
	ProfitPreTax  int64  `csv:"profit_pre_tax" json:"profit_pre_tax"`
	NetProfit     int64  `csv:"net_profit" json:"net_profit"`
	Capital       int64  `csv:"capital" json:"capital"`

	TotalShares       int64  `csv:"total_shares" json:"total_shares"`
	ParValue          int64  `csv:"par_value" json:"par_value"`
	DesiredPriceRange string `csv:"desired_price_range" json:"desired_price_range"`
	ConfirmedPrice    int64  `csv:"confirmed_price" json:"confirmed_price"`
	OfferingAmount    int64  `csv:"offering_amount" json:"offering_amount"`
	Underwriter       string `csv:"underwriter" json:"underwriter"`

	ListingDate     string `csv:"listing_date" json:"listing_date"`
	CompetitionRate string `csv:"competition_rate" json:"competition_rate"`
	EmpShares       int64  `csv:"emp_shares" json:"emp_shares"`
	InstShares      int64  `csv:"inst_shares" json:"inst_shares"`
	RetailShares    int64  `csv:"retail_shares" json:"retail_shares"`

	TradableSharesCount   string `csv:"tradable_shares" json:"tradable_shares"`
	TradableSharesPercent string `csv:"tradable_percent" json:"tradable_percent"`

	OpenPrice  int64   `csv:"open" json:"open"`
	HighPrice  int64   `csv:"high" json:"high"`
	LowPrice   int64   `csv:"low" json:"low"`
	ClosePrice int64   `csv:"close" json:"close"`
	GrowthRate float64 `csv:"growth_rate" json:"growth_rate"`
	HasQuote   bool    `csv:"has_quote" json:"has_quote"`

	Status    EnrichmentStatus `csv:"-" json:"status"`
	ScrapedAt time.Time        `csv:"scraped_at" json:"scraped_at"`
}

// MarkEnriched moves the record from pending to enriched. The transition is
// one-way and happens at most once.
func (s *Stock) MarkEnriched() error {
	if s.Status != StatusPending {
		return &StatusTransitionError{From: s.Status, To: StatusEnriched}
	}
	s.Status = StatusEnriched
	return nil
}

// MarkFailed moves the record from pending to failed.
func (s *Stock) MarkFailed() error {
	if s.Status != StatusPending {
		return &StatusTransitionError{From: s.Status, To: StatusFailed}
	}
	s.Status = StatusFailed
	return nil
}

// StatusTransitionError reports an attempt to move a record out of a terminal
// status.
type StatusTransitionError struct {
	From EnrichmentStatus
	To   EnrichmentStatus
}

func (e *StatusTransitionError) Error() string {
	return "models: invalid status transition " + e.From.String() + " -> " + e.To.String()
}
