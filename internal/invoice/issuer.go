// Package invoice renders receipt PDFs for settled orders. Idempotency
// (exactly one artifact per order) is enforced by the order store, which
// only calls Render when no artifact exists yet.
package invoice

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"repairbot/internal/catalog"
	"repairbot/internal/models"
	"repairbot/internal/util"

	"github.com/go-pdf/fpdf"
)

// BusinessInfo is the identity block printed at the top of every receipt.
type BusinessInfo struct {
	Name     string
	Subtitle string
	Phone    string
	Note1    string
	Note2    string
}

// Issuer writes receipt PDFs into a directory.
type Issuer struct {
	dir      string
	fontPath string
	info     BusinessInfo
}

// NewIssuer creates an issuer. fontPath may be empty; without a UTF-8 font
// the built-in Helvetica is used and non-Latin text will degrade.
func NewIssuer(dir, fontPath string, info BusinessInfo) *Issuer {
	return &Issuer{dir: dir, fontPath: fontPath, info: info}
}

// Render generates the receipt PDF and returns its path. The file name is
// derived from the invoice number, which is globally unique.
func (i *Issuer) Render(order *models.Order, invoiceNo int64, issuedAt time.Time) (string, error) {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create invoice dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	font := "Helvetica"
	if i.fontPath != "" {
		if _, err := os.Stat(i.fontPath); err == nil {
			pdf.AddUTF8Font("shopfont", "", i.fontPath)
			font = "shopfont"
			pdf.RTL()
		}
	}
	pdf.AddPage()

	line := func(size float64, text string) {
		pdf.SetFont(font, "", size)
		pdf.CellFormat(0, 8, text, "", 1, "R", false, 0, "")
	}

	line(18, "חשבונית מס / קבלה")
	line(11, i.info.Name)
	line(11, i.info.Subtitle)
	line(11, fmt.Sprintf("טלפון: %s", i.info.Phone))
	pdf.Ln(4)
	line(12, fmt.Sprintf("מס׳ חשבונית: %d", invoiceNo))
	line(12, fmt.Sprintf("תאריך: %s", issuedAt.Format("2006-01-02 15:04:05")))
	pdf.Ln(4)
	line(12, fmt.Sprintf("לקוח: %s", order.CustomerName))
	line(12, fmt.Sprintf("טלפון: %s", order.CustomerPhone))
	pdf.Ln(6)

	row := func(label string, amount int64) {
		pdf.SetFont(font, "", 11)
		pdf.CellFormat(60, 8, catalog.FormatAmount(amount), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, label, "", 1, "R", false, 0, "")
	}

	row(order.Item1Label, order.Item1Amount)
	if order.HasSecondItem() {
		row(order.Item2Label, order.Item2Amount)
	}

	pdf.Ln(6)
	pdf.SetFont(font, "", 14)
	pdf.CellFormat(60, 9, catalog.FormatAmount(order.TotalAmount), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, "סה״כ לתשלום", "", 1, "R", false, 0, "")

	pdf.Ln(10)
	line(10, i.info.Note1)
	line(9, i.info.Note2)

	path := filepath.Join(i.dir, fmt.Sprintf("invoice_%d.pdf", invoiceNo))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}
	util.InvoicesGeneratedTotal.Inc()
	return path, nil
}
