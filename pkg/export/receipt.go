package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the values printed on a payment receipt.
type Receipt struct {
	StudentName string
	Course      string
	Amount      string
	Currency    string
	IntentID    string
	PaidAt      time.Time
}

// ReceiptExporter renders payment receipts as PDF documents.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render produces the PDF bytes for a confirmed payment.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	if r.IntentID == "" {
		return nil, fmt.Errorf("receipt requires a payment reference")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "COMPROBANTE DE PAGO", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	rows := [][2]string{
		{"Estudiante", r.StudentName},
		{"Curso", r.Course},
		{"Monto", fmt.Sprintf("%s %s", r.Amount, r.Currency)},
		{"Referencia", r.IntentID},
		{"Fecha de pago", r.PaidAt.Format("2006-01-02 15:04")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
