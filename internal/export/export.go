// Package export renders ledger snapshots as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/nfe-panel/internal/core"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the entries in XLSX exports.
const SheetName = "NF-e"

// Header is the column row shared by every export format.
var Header = []string{"Fornecedor", "NF-e", "Valor", "Data de saída", "Recebido às"}

// Content types for HTTP responses.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// WriteXLSX writes records as a single-sheet workbook, in the order given.
// Values are stored as numbers so the sheet can sum them.
func WriteXLSX(w io.Writer, records []core.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			rec.Supplier,
			rec.InvoiceNumber,
			cellValue(rec.Value),
			rec.IssueDate,
			rec.ReceivedAt,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := styleSheet(f, len(records)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// cellValue returns the value as a number, or the raw text when it does not
// parse.
func cellValue(v string) interface{} {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	return d.InexactFloat64()
}

func styleSheet(f *excelize.File, rows int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "E1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	if rows > 0 {
		// Built-in format 4 is "#,##0.00".
		money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
		if err != nil {
			return fmt.Errorf("value style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(3, rows+1)
		if err := f.SetCellStyle(SheetName, "C2", last, money); err != nil {
			return fmt.Errorf("apply value style: %w", err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 40); err != nil {
		return err
	}
	return f.SetColWidth(SheetName, "B", "E", 18)
}

// WriteCSV writes records with a header row, in the order given. Text taken
// from the uploaded document is written as stored, except that a leading
// formula character gets a ' prefix.
func WriteCSV(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write([]string{
			csvText(rec.Supplier),
			csvText(rec.InvoiceNumber),
			rec.Value,
			csvText(rec.IssueDate),
			rec.ReceivedAt,
		}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// csvText keeps spreadsheets from evaluating document text as a formula.
func csvText(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
