package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary  = "Summary"
	SheetSales    = "Sales"
	SheetExpenses = "Expenses"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WriteWorkbook writes a workbook with Summary, Sales and Expenses sheets. The
// Expenses sheet has one row per item.
func WriteWorkbook(w io.Writer, in Input) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{SheetSales, SheetExpenses} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	sw := &sheetWriter{f: f, bold: bold, money: money}
	sw.summary(in)
	sw.sales(in)
	sw.expenses(in)
	if sw.err != nil {
		return sw.err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so the row-building code stays linear.
type sheetWriter struct {
	f     *excelize.File
	bold  int
	money int
	err   error
}

func (s *sheetWriter) row(sheet string, row int, values ...any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
		s.err = fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
}

func (s *sheetWriter) style(sheet, from, to string, style int) {
	if s.err != nil {
		return
	}
	if err := s.f.SetCellStyle(sheet, from, to, style); err != nil {
		s.err = fmt.Errorf("style %s %s:%s: %w", sheet, from, to, err)
	}
}

func (s *sheetWriter) widths(sheet string, widths ...float64) {
	for i, width := range widths {
		if s.err != nil {
			return
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			s.err = err
			return
		}
		if err := s.f.SetColWidth(sheet, col, col, width); err != nil {
			s.err = err
		}
	}
}

func (s *sheetWriter) summary(in Input) {
	sum := in.Summary
	s.row(SheetSummary, 1, in.Title)
	s.style(SheetSummary, "A1", "A1", s.bold)
	s.row(SheetSummary, 2, "Period", rangeLabel(in.Range))
	s.row(SheetSummary, 3, "Generated", in.GeneratedAt.Format("2006-01-02 15:04"))

	r := 5
	for _, kv := range []struct {
		label string
		value float64
	}{
		{"Total sales", rupees(sum.TotalSales)},
		{"Total expenses", rupees(sum.TotalExpenses)},
		{"Profit", rupees(sum.Profit)},
		{"Cash in hand", rupees(sum.Balances.CashInHand)},
		{"Bank balance", rupees(sum.Balances.BankBalance)},
	} {
		s.row(SheetSummary, r, kv.label, kv.value)
		r++
	}
	s.style(SheetSummary, "B5", fmt.Sprintf("B%d", r-1), s.money)

	r++
	s.row(SheetSummary, r, "Category", "Sales")
	s.style(SheetSummary, fmt.Sprintf("A%d", r), fmt.Sprintf("B%d", r), s.bold)
	start := r + 1
	for _, c := range sum.ByCategory {
		r++
		s.row(SheetSummary, r, c.Name, rupees(c.Amount))
	}
	if r >= start {
		s.style(SheetSummary, fmt.Sprintf("B%d", start), fmt.Sprintf("B%d", r), s.money)
	}

	r += 2
	s.row(SheetSummary, r, "Payment method", "Sales", "Expenses")
	s.style(SheetSummary, fmt.Sprintf("A%d", r), fmt.Sprintf("C%d", r), s.bold)
	for _, m := range sum.ByPaymentMethod {
		r++
		s.row(SheetSummary, r, string(m.Method), rupees(m.Sales), rupees(m.Expenses))
		s.style(SheetSummary, fmt.Sprintf("B%d", r), fmt.Sprintf("C%d", r), s.money)
	}

	s.widths(SheetSummary, 22, 16, 16)
}

func (s *sheetWriter) sales(in Input) {
	s.row(SheetSales, 1, "ID", "Date", "Amount", "Payment", "Category", "Note")
	s.style(SheetSales, "A1", "F1", s.bold)
	for i, sale := range in.Sales {
		r := i + 2
		s.row(SheetSales, r, sale.ID, sale.Date.String(), rupees(sale.Amount), string(sale.PaymentMethod), sale.Category, sale.Note)
		s.style(SheetSales, fmt.Sprintf("C%d", r), fmt.Sprintf("C%d", r), s.money)
	}
	s.widths(SheetSales, 8, 12, 14, 14, 18, 40)
}

func (s *sheetWriter) expenses(in Input) {
	s.row(SheetExpenses, 1, "Transaction", "Date", "Payment", "Item", "Unit", "Price per unit", "Line total", "Note")
	s.style(SheetExpenses, "A1", "H1", s.bold)
	r := 1
	for _, e := range in.Expenses {
		for _, it := range e.Items {
			r++
			s.row(SheetExpenses, r, e.ID, e.Date.String(), string(e.PaymentMethod), it.Name,
				it.Unit.InexactFloat64(), rupees(it.PricePerUnit), rupees(it.LineTotal), e.Note)
			s.style(SheetExpenses, fmt.Sprintf("F%d", r), fmt.Sprintf("G%d", r), s.money)
		}
	}
	s.widths(SheetExpenses, 12, 12, 14, 24, 8, 14, 14, 40)
}
