package exporter

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExcelWriterSortsByListingDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipo.xlsx")

	writer, err := NewExcelWriter(path)
	if err != nil {
		t.Fatalf("new excel writer: %v", err)
	}

	report := sampleReport(2024,
		sampleStock("http://x/2", "베타소재", "2024.05.20"),
		sampleStock("http://x/1", "알파테크", "2024.03.15"),
	)
	if err := writer.Export(report); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "2024년" {
		t.Errorf("sheets = %v, want [2024년]", sheets)
	}

	rows, err := f.GetRows("2024년")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (header + 2)", len(rows))
	}
	if rows[0][excelColID] != "ID" {
		t.Errorf("header first cell = %q", rows[0][0])
	}
	if rows[1][1] != "알파테크" || rows[2][1] != "베타소재" {
		t.Errorf("rows not sorted by listing date: %q, %q", rows[1][1], rows[2][1])
	}
}

func TestExcelWriterMergeKeepsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipo.xlsx")

	writer, err := NewExcelWriter(path)
	if err != nil {
		t.Fatalf("new excel writer: %v", err)
	}

	first := sampleReport(2024,
		sampleStock("http://x/1", "알파테크", "2024.03.15"),
		sampleStock("http://x/2", "베타소재", "2024.05.20"),
	)
	if err := writer.Export(first); err != nil {
		t.Fatalf("first export: %v", err)
	}

	// A re-run of the same year overwrites rows in place and appends new ones.
	second := sampleReport(2024,
		sampleStock("http://x/2", "베타소재(변경)", "2024.05.20"),
		sampleStock("http://x/3", "감마로직스", "2024.01.10"),
	)
	if err := writer.Export(second); err != nil {
		t.Fatalf("second export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("2024년")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4 (header + 3)", len(rows))
	}

	wantNames := []string{"감마로직스", "알파테크", "베타소재(변경)"}
	for i, want := range wantNames {
		if got := rows[i+1][1]; got != want {
			t.Errorf("row %d name = %q, want %q", i+1, got, want)
		}
	}
}

func TestExcelWriterSheetPerYear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipo.xlsx")

	writer, err := NewExcelWriter(path)
	if err != nil {
		t.Fatalf("new excel writer: %v", err)
	}

	if err := writer.Export(sampleReport(2023, sampleStock("http://x/9", "구년도상장", "2023.11.02"))); err != nil {
		t.Fatalf("export 2023: %v", err)
	}
	if err := writer.Export(sampleReport(2024, sampleStock("http://x/1", "알파테크", "2024.03.15"))); err != nil {
		t.Fatalf("export 2024: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{"2023년", "2024년"} {
		rows, err := f.GetRows(sheet)
		if err != nil {
			t.Fatalf("read sheet %s: %v", sheet, err)
		}
		if len(rows) != 2 {
			t.Errorf("sheet %s rows = %d, want 2", sheet, len(rows))
		}
	}
}
