package report

import (
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"

	"khata/internal/core"
)

const ContentTypePDF = "application/pdf"

// maxPDFCategories keeps the summary on one page.
const maxPDFCategories = 12

// WritePDF renders a one-page A4 summary: totals, balances, category breakdown
// and the monthly table.
func WritePDF(w io.Writer, in Input) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(in.Title, false)
	pdf.SetAutoPageBreak(false, 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, in.Title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Period: "+rangeLabel(in.Range))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Generated: "+in.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.Ln(10)

	sum := in.Summary
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Totals")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, kv := range []struct {
		label string
		value core.Money
	}{
		{"Total sales", sum.TotalSales},
		{"Total expenses", sum.TotalExpenses},
		{"Profit", sum.Profit},
		{"Cash in hand", sum.Balances.CashInHand},
		{"Bank balance", sum.Balances.BankBalance},
	} {
		pdf.Cell(60, 7, kv.label)
		pdf.CellFormat(40, 7, formatRs(kv.value), "", 0, "R", false, 0, "")
		pdf.Ln(7)
	}
	pdf.Ln(4)

	if len(sum.ByCategory) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Sales by category")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		cats := sum.ByCategory
		if len(cats) > maxPDFCategories {
			cats = cats[:maxPDFCategories]
		}
		for _, c := range cats {
			pdf.Cell(60, 7, c.Name)
			pdf.CellFormat(40, 7, formatRs(c.Amount), "", 0, "R", false, 0, "")
			pdf.Ln(7)
		}
		pdf.Ln(4)
	}

	if len(in.Monthly) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Monthly")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "B", 10)
		for _, h := range []string{"Month", "Sales", "Expenses", "Profit"} {
			align := "R"
			if h == "Month" {
				align = "L"
			}
			pdf.CellFormat(35, 6, h, "B", 0, align, false, 0, "")
		}
		pdf.Ln(6)

		pdf.SetFont("Helvetica", "", 10)
		for _, m := range in.Monthly {
			pdf.CellFormat(35, 6, fmt.Sprintf("%s %d", monthName(m.Month), m.Year), "", 0, "L", false, 0, "")
			pdf.CellFormat(35, 6, formatRs(m.Sales), "", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, formatRs(m.Expenses), "", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, formatRs(m.Profit), "", 0, "R", false, 0, "")
			pdf.Ln(6)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// formatRs uses an ASCII prefix; the core PDF fonts have no rupee glyph.
func formatRs(m core.Money) string {
	return "Rs. " + m.String()
}
