// Package parser normalizes the raw strings scraped from the IPO pages.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shkang-dev/ipo-crawler/models"
)

// NormalizeCell trims a table cell and removes non-breaking spaces.
func NormalizeCell(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(text)
}

// ParseWon extracts an integer amount from a cell such as "1,234 (백만원)" or
// "5,000원". Returns false for empty, dash or N/A cells.
func ParseWon(text string) (int64, bool) {
	text = NormalizeCell(text)
	if text == "" || text == "-" || strings.EqualFold(text, "N/A") {
		return 0, false
	}

	var digits strings.Builder
	for i, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}
		if r == '-' && i == 0 {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 || digits.String() == "-" {
		return 0, false
	}

	value, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ExtractShareCount pulls the share count out of cells like
// "1,234,567주 (10.5%)".
func ExtractShareCount(text string) (int64, bool) {
	text = NormalizeCell(text)
	if idx := strings.Index(text, "주"); idx >= 0 {
		text = text[:idx]
	}
	return ParseWon(text)
}

// NormalizeCompetitionRate canonicalizes rate cells such as "123.45 : 1".
func NormalizeCompetitionRate(text string) string {
	text = NormalizeCell(text)
	if text == "" || text == "-" || strings.EqualFold(text, "N/A") {
		return "N/A"
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
	return strings.Join(fields, "")
}

// ValidateStock ensures the scraper captured the required fields.
func ValidateStock(s *models.Stock) error {
	if s == nil {
		return fmt.Errorf("stock is nil")
	}
	if s.ID == "" {
		return fmt.Errorf("stock missing identifier")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("stock missing name for %s", s.ID)
	}
	return nil
}
