package parser

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
)

type errorReportRow struct {
	Row     int    `csv:"row"`
	Column  string `csv:"column"`
	Message string `csv:"message"`
	Raw     string `csv:"raw"`
}

// WriteErrorReport writes failed rows as CSV so they can be fixed and re-imported.
func WriteErrorReport(w io.Writer, errs []model.ImportError) error {
	rows := make([]*errorReportRow, len(errs))
	for i, e := range errs {
		rows[i] = &errorReportRow{
			Row:     e.Row,
			Column:  e.Column,
			Message: e.Message,
			Raw:     strings.Join(e.Raw, " | "),
		}
	}
	return gocsv.Marshal(rows, w)
}
