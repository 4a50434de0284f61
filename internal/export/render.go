package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"scan-licences/internal/model"
)

const sheetName = "Enregistrements"

// WriteCSV writes a ';' separated, CRLF terminated sheet for French
// spreadsheet defaults.
func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.UseCRLF = true
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(values(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, rows []model.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "D1", bold); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := values(r)
		if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "B", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "D", 18); err != nil {
		return err
	}
	return f.Write(w)
}

// PDF layout, in points on A4 portrait.
var pdfCols = []float64{140, 140, 100, 135}

const (
	pdfMargin = 40
	pdfRowH   = 16
)

func WritePDF(w io.Writer, rows []model.ExportRow, title string) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	_, pageH := pdf.GetPageSize()

	tableHeader := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(37, 99, 235)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range header {
			pdf.CellFormat(pdfCols[i], pdfRowH, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 20, tr(title), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 14, tr(fmt.Sprintf("%d enregistrement(s)", len(rows))), "", 1, "L", false, 0, "")
	pdf.Ln(6)
	tableHeader()

	for _, r := range rows {
		if pdf.GetY()+pdfRowH > pageH-pdfMargin {
			pdf.AddPage()
			tableHeader()
		}
		for i, v := range values(r) {
			pdf.CellFormat(pdfCols[i], pdfRowH, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}
