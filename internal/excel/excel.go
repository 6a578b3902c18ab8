package excel

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"geo-correlate/internal/models"
)

// SheetMissingError reports a sheet name that is not in the workbook.
type SheetMissingError struct {
	Sheet string
}

func (e *SheetMissingError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

func IsSheetMissing(err error) bool {
	var e *SheetMissingError
	return errors.As(err, &e)
}

// ReadRows returns every row of sheet, or of the first sheet when sheet is
// empty. Cells are the formatted strings excelize shows.
func ReadRows(payload []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !contains(sheets, sheet) {
		return nil, &SheetMissingError{Sheet: sheet}
	}
	return f.GetRows(sheet)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

const DiagnosticsSheet = "Diagnostics"

// WriteResult saves matches to sheetName and diagnostics to a second sheet.
func WriteResult(path string, matches []models.MatchRecord, diags []models.RowDiagnostic, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Use Stream Writer for performance
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	headers := []interface{}{
		"A Index", "A Row", "A Lat", "A Lon",
		"B Index", "B Row", "B Lat", "B Lon",
		"Distance (m)",
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}
	for i, m := range matches {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			m.SourceIndex, m.SourceRow, m.Source.Lat, m.Source.Lon,
			m.MatchedIndex, m.MatchedRow, m.Matched.Lat, m.Matched.Lon,
			math.Round(m.DistanceMeters*100) / 100,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	if _, err := f.NewSheet(DiagnosticsSheet); err != nil {
		return err
	}
	dw, err := f.NewStreamWriter(DiagnosticsSheet)
	if err != nil {
		return err
	}
	if err := dw.SetRow("A1", []interface{}{"Set", "Row", "Value", "Reason"}); err != nil {
		return err
	}
	for i, d := range diags {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := dw.SetRow(cell, []interface{}{d.SourceLabel, d.RowIndex, d.RawValue, string(d.Reason)}); err != nil {
			return err
		}
	}
	if err := dw.Flush(); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	// Delete default sheet if exists
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

const TemplateSheet = "Points"

// Template builds a starter workbook with lat/lon headers and two sample
// rows, the layout /execute expects with header selectors "lat" and "lon".
func Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return nil, err
	}
	rows := [][]interface{}{
		{"name", "lat", "lon"},
		{"London", 51.5, -0.1},
		{"Paris", 48.85, 2.35},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(TemplateSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
