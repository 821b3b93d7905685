package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 190.0
	dateLayout = "02/01/2006"
)

// PDFExporter renders school documents with gofpdf.
type PDFExporter struct {
	letterhead Letterhead
}

func NewPDFExporter(letterhead Letterhead) *PDFExporter {
	return &PDFExporter{letterhead: letterhead}
}

// Render draws the dataset as a single table under an optional title.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf, tr := e.newDocument("L")
	pdf.AddPage()
	e.header(pdf, tr, title)

	colWidth := 277.0 / float64(len(data.Headers))
	pdf.SetFont("Arial", "B", 10)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

// ReportCard renders a single student report card.
func (e *PDFExporter) ReportCard(doc ReportCardDocument) ([]byte, error) {
	return e.ReportCards([]ReportCardDocument{doc})
}

// ReportCards renders one page per report card.
func (e *PDFExporter) ReportCards(docs []ReportCardDocument) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no report card to render")
	}
	pdf, tr := e.newDocument("P")
	for _, doc := range docs {
		pdf.AddPage()
		e.header(pdf, tr, "Report card")
		e.reportCardPage(pdf, tr, doc)
	}
	return output(pdf)
}

func (e *PDFExporter) reportCardPage(pdf *gofpdf.Fpdf, tr func(string) string, doc ReportCardDocument) {
	pdf.SetFont("Arial", "", 10)
	field(pdf, tr, "Student", fmt.Sprintf("%s (%s)", doc.StudentName, doc.RegistrationNumber))
	field(pdf, tr, "Class", fmt.Sprintf("%s - %s", doc.ClassName, doc.LevelName))
	field(pdf, tr, "Session", fmt.Sprintf("%s, %s", doc.SessionLabel, doc.AcademicYear))
	pdf.Ln(4)

	widths := []float64{70, 20, 25, 25, 25, 25}
	headers := []string{"Subject", "Coef.", "Grade", "Class avg", "Min", "Max"}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		grade := "-"
		if line.Grade != nil {
			grade = twoDecimals(*line.Grade)
		}
		cells := []string{line.Subject, strconv.Itoa(line.Coefficient), grade, twoDecimals(line.ClassAverage), twoDecimals(line.Min), twoDecimals(line.Max)}
		for i, cell := range cells {
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	field(pdf, tr, "Average", twoDecimals(doc.Average)+" / 20")
	field(pdf, tr, "Rank", fmt.Sprintf("%d / %d", doc.Rank, doc.CohortSize))
	field(pdf, tr, "Decision", doc.Decision)
	pdf.SetFont("Arial", "", 10)
	if doc.Remark != "" {
		field(pdf, tr, "Remark", doc.Remark)
	}
	if !doc.EditionDate.IsZero() {
		field(pdf, tr, "Issued on", doc.EditionDate.Format(dateLayout))
	}
}

// Invoice renders an invoice with its balance and attached payments.
func (e *PDFExporter) Invoice(doc InvoiceDocument) ([]byte, error) {
	pdf, tr := e.newDocument("P")
	pdf.AddPage()
	e.header(pdf, tr, "Invoice "+doc.Number)

	pdf.SetFont("Arial", "", 10)
	field(pdf, tr, "Student", doc.StudentName)
	field(pdf, tr, "Class", doc.ClassName)
	field(pdf, tr, "Issued on", doc.IssuedAt.Format(dateLayout))
	field(pdf, tr, "Status", doc.Status)
	pdf.Ln(4)

	if len(doc.Payments) > 0 {
		widths := []float64{40, 40, 70, 40}
		pdf.SetFont("Arial", "B", 10)
		for i, h := range []string{"Date", "Method", "Reference", "Amount"} {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, p := range doc.Payments {
			cells := []string{p.PaidAt.Format(dateLayout), p.Method, p.Reference, twoDecimals(p.Amount)}
			for i, cell := range cells {
				pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 11)
	field(pdf, tr, "Total", twoDecimals(doc.Total))
	field(pdf, tr, "Paid", twoDecimals(doc.Paid))
	field(pdf, tr, "Remaining", twoDecimals(doc.Remaining))
	return output(pdf)
}

// Receipt renders a payment receipt.
func (e *PDFExporter) Receipt(doc ReceiptDocument) ([]byte, error) {
	pdf, tr := e.newDocument("P")
	pdf.AddPage()
	e.header(pdf, tr, "Receipt "+doc.ReceiptNumber)

	pdf.SetFont("Arial", "", 10)
	field(pdf, tr, "Student", doc.StudentName)
	field(pdf, tr, "Class", doc.ClassName)
	field(pdf, tr, "Paid on", doc.PaidAt.Format(dateLayout))
	field(pdf, tr, "Method", doc.Method)
	if doc.Reference != "" {
		field(pdf, tr, "Reference", doc.Reference)
	}
	if doc.InvoiceNumber != "" {
		field(pdf, tr, "Invoice", doc.InvoiceNumber)
	}
	if doc.Period != "" {
		field(pdf, tr, "Period", doc.Period)
	}
	if doc.Description != "" {
		field(pdf, tr, "Description", doc.Description)
	}
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	field(pdf, tr, "Amount", twoDecimals(doc.Amount))
	return output(pdf)
}

// EnrollmentCertificate renders an enrollment certificate signed by the head of school.
func (e *PDFExporter) EnrollmentCertificate(doc EnrollmentCertificateDocument) ([]byte, error) {
	pdf, tr := e.newDocument("P")
	pdf.AddPage()
	e.header(pdf, tr, "Enrollment certificate")

	school := e.letterhead.Name
	if school == "" {
		school = "this school"
	}
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("The undersigned, head of %s, certifies that the student identified below:", school)), "", "J", false)
	pdf.Ln(3)

	birthDate := "Not specified"
	if doc.BirthDate != nil {
		birthDate = doc.BirthDate.Format(dateLayout)
	}
	field(pdf, tr, "Last name", doc.StudentLastName)
	field(pdf, tr, "First name", doc.StudentFirstName)
	field(pdf, tr, "Registration no.", doc.RegistrationNumber)
	field(pdf, tr, "Date of birth", birthDate)
	pdf.Ln(3)

	pdf.MultiCell(0, 6, tr(fmt.Sprintf("is duly enrolled for the %s academic year in class %s (%s).",
		doc.AcademicYear, doc.ClassName, doc.LevelName)), "", "J", false)
	pdf.Ln(2)
	pdf.MultiCell(0, 6, tr("This certificate is issued to the person concerned for all legal purposes."), "", "J", false)

	pdf.Ln(12)
	pdf.CellFormat(0, 6, tr("Issued on "+doc.IssuedAt.Format(dateLayout)), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr("The head of school"), "", 1, "R", false, 0, "")
	pdf.Ln(20)

	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, tr("Ref: "+doc.Reference), "", 1, "R", false, 0, "")
	return output(pdf)
}

func (e *PDFExporter) newDocument(orientation string) (*gofpdf.Fpdf, func(string) string) {
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetTitle(e.letterhead.Name, true)
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func (e *PDFExporter) header(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	if e.letterhead.Name != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 7, tr(e.letterhead.Name), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, line := range []string{e.letterhead.Address, e.letterhead.Phone} {
			if line != "" {
				pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
			}
		}
		pdf.Ln(3)
	}
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}
}

func field(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.CellFormat(40, 6, tr(label+":"), "", 0, "L", false, 0, "")
	pdf.CellFormat(pageWidth-40, 6, tr(value), "", 1, "L", false, 0, "")
}

func twoDecimals(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
