package exporter

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shkang-dev/ipo-crawler/models"
)

var excelHeader = []string{
	"ID", "종목명", "시장구분", "업종",
	"매출액", "법인세차감전이익", "순이익", "자본금",
	"총공모주식수", "액면가", "희망공모가액", "확정공모가", "공모금액", "주간사",
	"상장일", "기관경쟁률", "우리사주조합", "기관투자자", "일반청약자",
	"유통가능물량", "유통가능물량지분율",
	"시가", "고가", "저가", "종가", "수익률(%)",
	"수집일시",
}

const (
	excelColID          = 0
	excelColListingDate = 14
	tempSheet           = "__rewrite__"
)

// ExcelWriter materializes reports into a workbook with one sheet per year.
// Re-exporting a year merges with the existing sheet: rows are keyed by
// identifier, newest data wins, and other years' sheets are preserved.
type ExcelWriter struct {
	path string
	mu   sync.Mutex
}

// NewExcelWriter builds a writer targeting path.
func NewExcelWriter(path string) (*ExcelWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &ExcelWriter{path: path}, nil
}

// Export merges the report into its year sheet and saves the workbook.
func (w *ExcelWriter) Export(report *models.ScrapeReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, isNew, err := w.open()
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := fmt.Sprintf("%d년", report.Year)
	rows, err := w.mergedRows(f, sheet, report)
	if err != nil {
		return err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][excelColListingDate] < rows[j][excelColListingDate]
	})

	if err := w.rewriteSheet(f, sheet, rows); err != nil {
		return err
	}

	if isNew {
		f.DeleteSheet("Sheet1")
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Close is a no-op: Export saves the workbook on every call.
func (w *ExcelWriter) Close() error {
	return nil
}

// Validate ensures the workbook was written.
func (w *ExcelWriter) Validate() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("stat workbook: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("workbook is empty")
	}
	return nil
}

func (w *ExcelWriter) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(w.path); err == nil {
		f, err := excelize.OpenFile(w.path)
		return f, false, err
	}
	return excelize.NewFile(), true, nil
}

// mergedRows combines the sheet's existing rows with the report's records,
// keyed by identifier with the report taking precedence.
func (w *ExcelWriter) mergedRows(f *excelize.File, sheet string, report *models.ScrapeReport) ([][]string, error) {
	byID := make(map[string]int)
	var rows [][]string

	if idx, err := f.GetSheetIndex(sheet); err == nil && idx >= 0 {
		existing, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for i, row := range existing {
			if i == 0 || len(row) == 0 {
				continue
			}
			padded := padRow(row)
			byID[padded[excelColID]] = len(rows)
			rows = append(rows, padded)
		}
	}

	for _, stock := range report.Stocks {
		row := excelRecord(stock)
		if at, ok := byID[row[excelColID]]; ok {
			rows[at] = row
			continue
		}
		byID[row[excelColID]] = len(rows)
		rows = append(rows, row)
	}

	return rows, nil
}

func (w *ExcelWriter) rewriteSheet(f *excelize.File, sheet string, rows [][]string) error {
	if idx, err := f.GetSheetIndex(sheet); err == nil && idx >= 0 {
		if _, err := f.NewSheet(tempSheet); err != nil {
			return fmt.Errorf("stage sheet rewrite: %w", err)
		}
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("clear sheet %s: %w", sheet, err)
		}
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	f.DeleteSheet(tempSheet)

	header := make([]interface{}, len(excelHeader))
	for i, h := range excelHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	widths := make([]int, len(excelHeader))
	for i, h := range excelHeader {
		widths[i] = len([]rune(h))
	}

	for i, row := range rows {
		cells := toCellValues(row)
		axis := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		for c, cell := range row {
			if c < len(widths) && len([]rune(cell)) > widths[c] {
				widths[c] = len([]rune(cell))
			}
		}
	}

	for c := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			continue
		}
		width := float64(widths[c]) + 2
		if width < 10 {
			width = 10
		}
		if width > 50 {
			width = 50
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	return nil
}

func excelRecord(s *models.Stock) []string {
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

func padRow(row []string) []string {
	if len(row) >= len(excelHeader) {
		return row[:len(excelHeader)]
	}
	padded := make([]string, len(excelHeader))
	copy(padded, row)
	return padded
}

// toCellValues keeps numeric-looking cells numeric in the workbook.
func toCellValues(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, cell := range row {
		if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
			cells[i] = v
			continue
		}
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			cells[i] = v
			continue
		}
		cells[i] = cell
	}
	return cells
}
