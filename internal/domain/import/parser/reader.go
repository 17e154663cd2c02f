// Package parser turns raw statement records into parsed transactions.
// Every row yields its own result, so one bad row never aborts the file.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one raw record of a statement. Err is set when the record could not be split.
type Record struct {
	Fields []string
	Line   int // 1-based line in the source where the record starts
	Err    error
}

// DecodeText strips a UTF-8 BOM and, when the bytes are not valid UTF-8,
// decodes them as Windows-1252 (the Latin-1 superset most bank exports use).
func DecodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// ReadRecords splits delimited text into records. Malformed records are kept with
// Err set instead of stopping the read, so later rows are still extracted.
func ReadRecords(data []byte, delimiter rune) []Record {
	if delimiter == 0 {
		delimiter = ','
	}

	reader := csv.NewReader(bytes.NewReader(DecodeText(data)))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rec := Record{Err: err}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rec.Line = pe.StartLine
			}
			records = append(records, rec)
			continue
		}
		line, _ := reader.FieldPos(0)
		records = append(records, Record{Fields: fields, Line: line})
	}
	return records
}

// RecordsFromRows wraps already split rows, e.g. spreadsheet rows.
func RecordsFromRows(rows [][]string) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{Fields: r, Line: i + 1}
	}
	return out
}

// Rows returns the fields of each record; malformed records become nil rows.
func Rows(records []Record) [][]string {
	out := make([][]string, len(records))
	for i, r := range records {
		if r.Err == nil {
			out[i] = r.Fields
		}
	}
	return out
}
