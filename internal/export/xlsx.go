// Package export renders extracted records as a spreadsheet or plain text.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// SheetName is the single worksheet of the workbook
const SheetName = "MCQs"

// Headers are the workbook columns in order. Choice E is carried by the
// record and the transcript but has no spreadsheet column.
var Headers = []string{"Question", "Choice A", "Choice B", "Choice C", "Choice D", "Correct Answer", "Passage"}

var columnWidths = []float64{60, 25, 25, 25, 25, 15, 80}

// WriteXLSX writes one header row and one row per record to w
func WriteXLSX(w io.Writer, records []domain.MCQRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return domain.IOError("Failed to name worksheet", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(SheetName, cell, h); err != nil {
			return domain.IOError("Failed to write header", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return domain.IOError("Failed to create header style", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, bold); err != nil {
		return domain.IOError("Failed to style header", err)
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return domain.IOError("Failed to set column width", err)
		}
	}

	for i, r := range records {
		row := []interface{}{r.Question, r.ChoiceA, r.ChoiceB, r.ChoiceC, r.ChoiceD, r.CorrectAnswer, r.Passage}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return domain.IOError(fmt.Sprintf("Failed to write row %d", i+2), err)
		}
	}

	if err := f.Write(w); err != nil {
		return domain.IOError("Failed to write workbook", err)
	}
	return nil
}

// XLSX returns the workbook as bytes
func XLSX(records []domain.MCQRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
