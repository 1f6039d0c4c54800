// Package invoice renders bills as printable PDF invoices.
package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
)

// Pharmacy is the header block printed on every invoice
type Pharmacy struct {
	Name     string
	Address  string
	Phone    string
	Currency string
}

// DefaultCurrency prefixes money amounts when the pharmacy sets none
const DefaultCurrency = "PKR"

var customerLabels = map[domain.CustomerTier]string{
	domain.TierGeneral:             "General Customer",
	domain.TierDoctor:              "Doctor",
	domain.TierMedicalProfessional: "Medical Professional",
}

// Render lays out b as an A4 invoice.
func Render(p Pharmacy, b domain.Bill) ([]byte, error) {
	cur := p.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	money := func(d decimal.Decimal) string { return cur + " " + d.StringFixed(2) }

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle("Invoice", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, tr(p.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if p.Address != "" {
		pdf.CellFormat(190, 5, tr(p.Address), "", 1, "C", false, 0, "")
	}
	if p.Phone != "" {
		pdf.CellFormat(190, 5, "Phone: "+tr(p.Phone), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	invoiceNo := "-"
	if b.SourceBillID != 0 {
		invoiceNo = fmt.Sprintf("%d", b.SourceBillID)
	}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Bill To", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	name := b.Customer.Name
	if name == "" {
		name = "Walk-in customer"
	}
	pdf.CellFormat(95, 7, "Name: "+tr(name), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Invoice #: "+invoiceNo, "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Phone: "+tr(b.Customer.Phone), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Date: "+b.Date, "RB", 1, "L", false, 0, "")
	pdf.CellFormat(190, 7, "Customer type: "+customerLabels[b.Customer.Tier], "LRB", 1, "L", false, 0, "")
	pdf.Ln(4)

	// line table
	widths := []float64{62, 24, 26, 26, 16, 36}
	headers := []string{"Medicine", "Qty", "Unit Price", "Subtotal", "Disc %", "Total"}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	for i, h := range headers {
		ln := 0
		if i == len(headers)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 7, h, "1", ln, "C", true, 0, "")
	}
	pdf.SetFont("Arial", "", 9)
	for _, it := range b.Items {
		label := it.Name
		if it.GenericName != "" {
			label += " (" + it.GenericName + ")"
		}
		if len(label) > 38 {
			label = label[:35] + "..."
		}
		pdf.CellFormat(widths[0], 6, tr(label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%d %s", it.Quantity, it.QuantityType), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 6, it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, it.Subtotal.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, it.DiscountPercentage.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, it.Total.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// totals
	totals := []struct {
		label string
		value string
	}{
		{"Subtotal", money(b.Subtotal)},
		{"Discount", "-" + money(b.Discount)},
		{"Tax", money(b.Tax)},
	}
	pdf.SetFont("Arial", "", 10)
	for _, t := range totals {
		pdf.CellFormat(130, 7, "", "", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, t.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, t.value, "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(130, 8, "", "", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, "Total", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, money(b.GrandTotal), "1", 1, "R", true, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(190, 6, "Thank you for your business!", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
