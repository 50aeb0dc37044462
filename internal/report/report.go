// Package report renders ledger exports: an XLSX workbook and a one-page PDF summary.
package report

import (
	"time"

	"khata/internal/core"
)

// Input is everything an export needs. Expenses carry their items.
type Input struct {
	Title       string
	Range       core.DateRange
	GeneratedAt time.Time
	Summary     core.Summary
	// Monthly spans every month of the range that can hold rows.
	Monthly     []core.MonthTotals
	Sales       []core.Sale
	Expenses    []core.ExpenseTransaction
}

// rangeLabel renders an inclusive range, leaving open ends as words.
func rangeLabel(r core.DateRange) string {
	from, to := r.From.String(), r.To.String()
	switch {
	case from == "" && to == "":
		return "All dates"
	case from == "":
		return "Up to " + to
	case to == "":
		return "From " + from
	}
	return from + " to " + to
}

func rupees(m core.Money) float64 {
	return m.Decimal().InexactFloat64()
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}
