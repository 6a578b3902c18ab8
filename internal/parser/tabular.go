package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"geo-correlate/internal/excel"
)

type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// TabularSource selects two columns of a CSV or XLSX payload. Column1 is
// the first coordinate component, Column2 the second. A header row is
// assumed when Header is set or when either selector is a name.
type TabularSource struct {
	Payload  []byte
	Format   Format
	Column1  ColumnRef
	Column2  ColumnRef
	Header   bool
	Sheet    string
	Encoding string
}

func (TabularSource) Kind() string { return KindTabular }

var zipMagic = []byte("PK\x03\x04")

func (s TabularSource) format() Format {
	if s.Format != FormatAuto {
		return s.Format
	}
	if bytes.HasPrefix(s.Payload, zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

func (s TabularSource) pairs(label string) ([]RawPair, error) {
	cfgErr := func(field, reason string, err error) error {
		return &ConfigurationError{Set: label, Field: field, Reason: reason, Err: err}
	}
	if !s.Column1.IsSet() {
		return nil, cfgErr(FieldColumn1, "column selector is required in tabular mode", nil)
	}
	if !s.Column2.IsSet() {
		return nil, cfgErr(FieldColumn2, "column selector is required in tabular mode", nil)
	}
	if len(s.Payload) == 0 {
		return nil, cfgErr(FieldPayload, "tabular source is empty", nil)
	}

	var records [][]string
	var err error
	switch f := s.format(); f {
	case FormatCSV:
		records, err = readCSV(s.Payload, s.Encoding)
	case FormatXLSX:
		records, err = excel.ReadRows(s.Payload, s.Sheet)
		if excel.IsSheetMissing(err) {
			return nil, cfgErr(FieldSheet, "sheet not found", err)
		}
	default:
		return nil, cfgErr(FieldPayload, fmt.Sprintf("unsupported format %q", f), nil)
	}
	if err != nil {
		return nil, cfgErr(FieldPayload, "unreadable tabular source", err)
	}
	first := firstFilled(records)
	if first < 0 {
		return nil, cfgErr(FieldPayload, "table has no rows", nil)
	}

	header := s.Header || s.Column1.IsName() || s.Column2.IsName()
	width := len(records[first])
	var names []string
	if header {
		names = records[first]
		records = records[first+1:]
	}

	c1, err := resolveColumn(s.Column1, names, width)
	if err != nil {
		return nil, cfgErr(FieldColumn1, err.Error(), nil)
	}
	c2, err := resolveColumn(s.Column2, names, width)
	if err != nil {
		return nil, cfgErr(FieldColumn2, err.Error(), nil)
	}

	// blank records are skipped but keep their place in the row numbering
	out := make([]RawPair, 0, len(records))
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		values := []string{cell(rec, c1), cell(rec, c2)}
		out = append(out, RawPair{
			Row:    i,
			Values: values,
			Raw:    strings.Join(values, ","),
		})
	}
	return out, nil
}

func resolveColumn(ref ColumnRef, names []string, width int) (int, error) {
	if ref.IsName() {
		want := strings.TrimSpace(ref.Name)
		for i, n := range names {
			if strings.TrimSpace(n) == want {
				return i, nil
			}
		}
		for i, n := range names {
			if strings.EqualFold(strings.TrimSpace(n), want) {
				return i, nil
			}
		}
		return 0, fmt.Errorf("no column named %s", ref)
	}
	if ref.Index < 0 || ref.Index >= width {
		return 0, fmt.Errorf("column %d out of range, table has %d columns (0-based)", ref.Index, width)
	}
	return ref.Index, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstFilled(records [][]string) int {
	for i, rec := range records {
		if !blank(rec) {
			return i
		}
	}
	return -1
}

func readCSV(payload []byte, encoding string) ([][]string, error) {
	text, err := decodeText(payload, encoding)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// decodeText converts payload to UTF-8. "auto" keeps valid UTF-8 and reads
// anything else as windows-1252.
func decodeText(payload []byte, encoding string) (string, error) {
	var cm *charmap.Charmap
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "auto":
		if utf8.Valid(payload) {
			return string(payload), nil
		}
		cm = charmap.Windows1252
	case "utf-8", "utf8":
		if !utf8.Valid(payload) {
			return "", fmt.Errorf("invalid utf-8")
		}
		return string(payload), nil
	case "latin1", "iso-8859-1":
		cm = charmap.ISO8859_1
	case "latin2", "iso-8859-2":
		cm = charmap.ISO8859_2
	case "windows-1252", "cp1252":
		cm = charmap.Windows1252
	case "windows-1254", "cp1254":
		cm = charmap.Windows1254
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
	b, err := cm.NewDecoder().Bytes(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
