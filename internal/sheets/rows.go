// Package sheets defines the row layout of the spreadsheet mirror. Every row
// starts with a reference cell naming the record it came from.
package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"khata/internal/core"
	"khata/internal/ports"
)

var (
	SalesHeader    = []any{"Ref", "Date", "Amount", "Payment", "Category", "Note"}
	ExpensesHeader = []any{"Ref", "Date", "Payment", "Item", "Unit", "Price per unit", "Line total", "Grand total", "Note"}
)

// RowRef is the value of the first column for a record, e.g. "sale:42".
func RowRef(kind ports.RecordKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// ParseRowRef reverses RowRef.
func ParseRowRef(ref string) (ports.RecordKind, int64, bool) {
	kind, idText, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return "", 0, false
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	switch k := ports.RecordKind(kind); k {
	case ports.KindSale, ports.KindExpense:
		return k, id, true
	}
	return "", 0, false
}

func SaleRow(s core.Sale) []any {
	return []any{
		RowRef(ports.KindSale, s.ID),
		s.Date.String(),
		s.Amount.String(),
		string(s.PaymentMethod),
		s.Category,
		s.Note,
	}
}

// ExpenseRows returns one row per item. A transaction without loaded items
// still gets a single row carrying its grand total.
func ExpenseRows(e core.ExpenseTransaction) [][]any {
	ref := RowRef(ports.KindExpense, e.ID)
	total := e.Total().String()
	if len(e.Items) == 0 {
		return [][]any{{ref, e.Date.String(), string(e.PaymentMethod), "", "", "", "", total, e.Note}}
	}
	rows := make([][]any, 0, len(e.Items))
	for _, it := range e.Items {
		rows = append(rows, []any{
			ref,
			e.Date.String(),
			string(e.PaymentMethod),
			it.Name,
			it.Unit.String(),
			it.PricePerUnit.String(),
			it.LineTotal.String(),
			total,
			e.Note,
		})
	}
	return rows
}

// MatchingRows returns the zero-based indexes of rows whose first cell equals ref.
func MatchingRows(values [][]any, ref string) []int {
	var out []int
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == ref {
			out = append(out, i)
		}
	}
	return out
}

// Span is a half-open range of zero-based row indexes.
type Span struct {
	Start, End int
}

// Spans merges sorted row indexes into contiguous spans, last span first, so
// deleting them in order never shifts a span still to be deleted.
func Spans(rows []int) []Span {
	if len(rows) == 0 {
		return nil
	}
	var spans []Span
	cur := Span{Start: rows[0], End: rows[0] + 1}
	for _, r := range rows[1:] {
		if r == cur.End {
			cur.End++
			continue
		}
		spans = append(spans, cur)
		cur = Span{Start: r, End: r + 1}
	}
	spans = append(spans, cur)
	for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
		spans[i], spans[j] = spans[j], spans[i]
	}
	return spans
}
