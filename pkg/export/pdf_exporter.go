package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a dataset as a printable update report. Change
// overviews are wide tables, so pages are laid out landscape with the
// free-text Changes column taking the slack the fixed columns leave.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Widths in mm on a landscape A4 body of 277mm.
const (
	pdfPageWidth  = 277.0
	pdfNarrowCol  = 35.0
	pdfHeaderRowH = 8.0
	pdfBodyRowH   = 7.0
)

// Render creates the report with an optional title line and a bordered
// table body. The last column is treated as the wide free-text one.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	widths := columnWidths(len(data.Headers))
	pdf.SetFont("Arial", "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], pdfHeaderRowH, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], pdfBodyRowH, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths gives every column a narrow fixed width except the last,
// which absorbs the remaining page width. A single column gets it all.
func columnWidths(count int) []float64 {
	widths := make([]float64, count)
	if count == 1 {
		widths[0] = pdfPageWidth
		return widths
	}
	for i := 0; i < count-1; i++ {
		widths[i] = pdfNarrowCol
	}
	last := pdfPageWidth - pdfNarrowCol*float64(count-1)
	if last < pdfNarrowCol {
		// Too many columns to privilege one; fall back to an even split.
		even := pdfPageWidth / float64(count)
		for i := range widths {
			widths[i] = even
		}
		return widths
	}
	widths[count-1] = last
	return widths
}
