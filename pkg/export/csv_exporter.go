package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"reflect"

	"github.com/gocarina/gocsv"
)

// CSVExporter converts tagged structs (`csv:"..."`) to and from CSV.
type CSVExporter struct {
	delimiter rune
}

// NewCSVExporter builds a CSV exporter; a zero delimiter means comma.
func NewCSVExporter(delimiter rune) *CSVExporter {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVExporter{delimiter: delimiter}
}

// Render marshals a slice of tagged structs, header row first.
func (e *CSVExporter) Render(rows interface{}) ([]byte, error) {
	v := reflect.ValueOf(rows)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("csv render expects a slice, got %T", rows)
	}
	payload, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return payload, nil
}

// Decode reads CSV rows from r into out, a pointer to a slice of tagged structs.
func (e *CSVExporter) Decode(r io.Reader, out interface{}) error {
	reader := csv.NewReader(r)
	reader.Comma = e.delimiter
	reader.TrimLeadingSpace = true
	if err := gocsv.UnmarshalCSV(reader, out); err != nil {
		return fmt.Errorf("unmarshal csv: %w", err)
	}
	return nil
}
