package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrNoSheet = errors.New("workbook has no sheets")

// preferredSheets are tried before falling back to the first sheet.
var preferredSheets = []string{
	"transactions", "movimentos", "extrato",
	"statement", "data", "sheet1",
}

// ReadExcelRecords reads the transaction sheet of an XLSX workbook as records.
func ReadExcelRecords(r io.Reader) ([]Record, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := findTransactionSheet(f.GetSheetList())
	if sheet == "" {
		return nil, "", ErrNoSheet
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, sheet, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return RecordsFromRows(rows), sheet, nil
}

// findTransactionSheet finds the best sheet for transaction data
func findTransactionSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}

// IsExcel reports whether data starts with the ZIP signature used by XLSX files.
func IsExcel(data []byte) bool {
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04
}
