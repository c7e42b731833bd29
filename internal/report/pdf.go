// Package report renders a finished analysis as a shareable PDF.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"

	"github.com/hpungsan/atlas/internal/record"
)

// Color scheme
var (
	colorPrimary    = [3]int{79, 70, 229}   // Indigo
	colorTextDark   = [3]int{31, 41, 55}    // Dark text
	colorTextMuted  = [3]int{107, 114, 128} // Muted text
	colorBackground = [3]int{243, 244, 246} // Light gray bg
	colorGridLine   = [3]int{220, 220, 220} // Rules
)

// Data is the input to Generate.
type Data struct {
	ID          string
	KindLabel   string // "Image" or "PDF Document"
	DisplayName string
	MediaType   string
	SizeBytes   int64
	CreatedAt   time.Time
	FinishedAt  time.Time
	Title       string // "AI Answer"
	Sections    []record.Section
}

// FromAnalysis builds report data from a stored analysis.
func FromAnalysis(a *record.Analysis, kindLabel, title string) *Data {
	d := &Data{
		ID:          a.ID,
		KindLabel:   kindLabel,
		DisplayName: a.DisplayName,
		MediaType:   a.MediaType,
		SizeBytes:   a.ContentBytes,
		CreatedAt:   time.Unix(a.CreatedAt, 0).UTC(),
		Title:       title,
		Sections:    record.ParseSections(a.ReportText),
	}
	if a.FinishedAt != nil {
		d.FinishedAt = time.Unix(*a.FinishedAt, 0).UTC()
	}
	return d
}

// PDFGenerator handles PDF report generation.
type PDFGenerator struct{}

// NewPDFGenerator creates a new PDF generator.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Generate creates a one-document PDF for the analysis.
func (g *PDFGenerator) Generate(data *Data) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("report data is required")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle("ATLAS AI - "+data.DisplayName, true)
	pdf.SetCreator("ATLAS AI", true)

	// Core fonts are cp1252; translate UTF-8 text before writing it.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	g.writeHeader(pdf, tr, data)
	g.writeCaptureBox(pdf, tr, data)
	g.writeSections(pdf, tr, data)
	g.addPageNumbers(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) writeHeader(pdf *fpdf.Fpdf, tr func(string) string, data *Data) {
	pageWidth, _ := pdf.GetPageSize()

	// Top accent bar
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 6, "F")

	pdf.SetY(16)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 5, "ATLAS AI", "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 5, data.ID, "", 1, "R", false, 0, "")

	title := data.Title
	if title == "" {
		title = "AI Answer"
	}
	pdf.SetY(28)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(3)
}

// writeCaptureBox summarizes the analyzed content.
func (g *PDFGenerator) writeCaptureBox(pdf *fpdf.Fpdf, tr func(string) string, data *Data) {
	pageWidth, _ := pdf.GetPageSize()
	boxX := 20.0
	boxWidth := pageWidth - 40
	boxHeight := 24.0
	boxY := pdf.GetY()

	pdf.SetFillColor(colorBackground[0], colorBackground[1], colorBackground[2])
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.RoundedRect(boxX, boxY, boxWidth, boxHeight, 3, "1234", "FD")

	pdf.SetXY(boxX+5, boxY+4)
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(boxWidth-10, 6, tr(data.DisplayName), "", 1, "L", false, 0, "")

	meta := []string{data.KindLabel}
	if data.MediaType != "" {
		meta = append(meta, data.MediaType)
	}
	if data.SizeBytes > 0 {
		meta = append(meta, humanize.Bytes(uint64(data.SizeBytes)))
	}
	pdf.SetX(boxX + 5)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(boxWidth-10, 5, tr(strings.Join(meta, "  |  ")), "", 1, "L", false, 0, "")

	pdf.SetX(boxX + 5)
	when := "Captured " + data.CreatedAt.Format("Jan 2, 2006 15:04 MST")
	if !data.FinishedAt.IsZero() {
		when += ", answered " + data.FinishedAt.Format("15:04 MST")
	}
	pdf.CellFormat(boxWidth-10, 5, when, "", 1, "L", false, 0, "")

	pdf.SetY(boxY + boxHeight + 8)
}

func (g *PDFGenerator) writeSections(pdf *fpdf.Fpdf, tr func(string) string, data *Data) {
	if len(data.Sections) == 0 {
		pdf.SetFont("Arial", "I", 11)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.MultiCell(0, 6, "No answer available.", "", "L", false)
		return
	}

	for _, s := range data.Sections {
		if s.Title != "" {
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 13)
			pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
			pdf.CellFormat(0, 8, tr(s.Title), "", 1, "L", false, 0, "")
		}
		pdf.SetFont("Arial", "", 11)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.MultiCell(0, 6, tr(plainText(s.Body)), "", "L", false)
		pdf.Ln(2)
	}
}

// plainText drops inline markdown emphasis.
func plainText(s string) string {
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
}

func (g *PDFGenerator) addPageNumbers(pdf *fpdf.Fpdf) {
	// Disable auto page break while adding footers to prevent creating new pages
	pdf.SetAutoPageBreak(false, 0)

	totalPages := pdf.PageCount()
	for i := 1; i <= totalPages; i++ {
		pdf.SetPage(i)
		pageWidth, pageHeight := pdf.GetPageSize()

		pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		pdf.SetLineWidth(0.3)
		pdf.Line(20, pageHeight-20, pageWidth-20, pageHeight-20)

		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of %d", i, totalPages), "", 0, "C", false, 0, "")
	}
}
