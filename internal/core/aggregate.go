package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Record is a sale or expense transaction as seen by the aggregation functions.
type Record interface {
	Total() Money
	Method() PaymentMethod
	Day() Date
}

// TotalAmount sums sale amounts or expense grand totals. Empty input yields zero.
func TotalAmount[R Record](records []R) Money {
	var sum Money
	for _, r := range records {
		sum = sum.Add(r.Total())
	}
	return sum
}

// Profit is total sales minus total expenses. It is not clamped at zero.
func Profit(sales []Sale, expenses []ExpenseTransaction) Money {
	return TotalAmount(sales).Sub(TotalAmount(expenses))
}

// Reconcile partitions both sets by payment method into the cash bucket and the
// bank bucket and subtracts expenses from sales inside each. The two balances always
// add up to Profit over the same rows.
func Reconcile(sales []Sale, expenses []ExpenseTransaction) Balances {
	var b Balances
	for _, s := range sales {
		if s.PaymentMethod.IsCash() {
			b.CashInHand = b.CashInHand.Add(s.Total())
		} else {
			b.BankBalance = b.BankBalance.Add(s.Total())
		}
	}
	for _, e := range expenses {
		if e.PaymentMethod.IsCash() {
			b.CashInHand = b.CashInHand.Sub(e.Total())
		} else {
			b.BankBalance = b.BankBalance.Sub(e.Total())
		}
	}
	return b
}

// GroupByCategory sums sale amounts per category in first-seen order.
// Uncategorized sales are left out.
func GroupByCategory(sales []Sale) []CategoryAmount {
	return groupOrdered(len(sales), func(yield func(key, label string, m Money)) {
		for _, s := range sales {
			c := strings.TrimSpace(s.Category)
			if c == "" {
				continue
			}
			yield(c, c, s.Total())
		}
	})
}

// GroupExpensesByItem sums line totals per item name. Names are matched
// case-insensitively; the first spelling seen is reported.
func GroupExpensesByItem(expenses []ExpenseTransaction) []CategoryAmount {
	return groupOrdered(len(expenses), func(yield func(key, label string, m Money)) {
		for _, e := range expenses {
			for _, it := range e.Items {
				name := strings.TrimSpace(it.Name)
				yield(strings.ToLower(name), name, LineTotal(it.Unit, it.PricePerUnit))
			}
		}
	})
}

func groupOrdered(hint int, each func(yield func(key, label string, m Money))) []CategoryAmount {
	index := make(map[string]int, hint)
	out := make([]CategoryAmount, 0, hint)
	each(func(key, label string, m Money) {
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, CategoryAmount{Name: label})
		}
		out[i].Amount = out[i].Amount.Add(m)
	})
	return out
}

// SplitByPaymentMethod reports per-method totals in PaymentMethods order, listing
// only methods that occur. Unrecognized methods are appended after the known ones.
func SplitByPaymentMethod(sales []Sale, expenses []ExpenseTransaction) []MethodAmount {
	byMethod := make(map[PaymentMethod]*MethodAmount)
	var extra []PaymentMethod
	get := func(p PaymentMethod) *MethodAmount {
		ma, ok := byMethod[p]
		if !ok {
			ma = &MethodAmount{Method: p}
			byMethod[p] = ma
			if p.Validate() != nil {
				extra = append(extra, p)
			}
		}
		return ma
	}
	for _, s := range sales {
		ma := get(s.PaymentMethod)
		ma.Sales = ma.Sales.Add(s.Total())
	}
	for _, e := range expenses {
		ma := get(e.PaymentMethod)
		ma.Expenses = ma.Expenses.Add(e.Total())
	}

	out := make([]MethodAmount, 0, len(byMethod))
	for _, p := range append(PaymentMethods(), extra...) {
		if ma, ok := byMethod[p]; ok {
			out = append(out, *ma)
		}
	}
	return out
}

// BucketByDay returns exactly windowDays contiguous daily buckets ending at ref,
// oldest first. Days without records carry zero totals; records outside the window
// are ignored.
func BucketByDay(sales []Sale, expenses []ExpenseTransaction, windowDays int, ref Date) []DayBucket {
	if windowDays <= 0 {
		return []DayBucket{}
	}
	ref = DateOf(ref.Time)
	start := ref.AddDays(-(windowDays - 1))

	buckets := make([]DayBucket, windowDays)
	index := make(map[string]int, windowDays)
	for i := range buckets {
		d := start.AddDays(i)
		buckets[i].Date = d
		index[d.String()] = i
	}

	for _, s := range sales {
		if i, ok := index[s.Date.String()]; ok {
			buckets[i].SalesTotal = buckets[i].SalesTotal.Add(s.Total())
		}
	}
	for _, e := range expenses {
		if i, ok := index[e.Date.String()]; ok {
			buckets[i].ExpensesTotal = buckets[i].ExpensesTotal.Add(e.Total())
		}
	}
	return buckets
}

// MonthlyBreakdown returns the twelve month totals of year. Rows from other years
// are ignored.
func MonthlyBreakdown(sales []Sale, expenses []ExpenseTransaction, year int) []MonthTotals {
	months := make([]MonthTotals, 12)
	for i := range months {
		months[i].Year = year
		months[i].Month = i + 1
	}
	for _, s := range sales {
		if s.Date.Year() == year {
			m := &months[s.Date.Month()-1]
			m.Sales = m.Sales.Add(s.Total())
		}
	}
	for _, e := range expenses {
		if e.Date.Year() == year {
			m := &months[e.Date.Month()-1]
			m.Expenses = m.Expenses.Add(e.Total())
		}
	}
	for i := range months {
		months[i].Profit = months[i].Sales.Sub(months[i].Expenses)
	}
	return months
}

// MonthlySeries returns consecutive month totals covering every year that has
// rows, or fallbackYear when there are none. Months wholly outside r are
// dropped, so the series sums to Profit over rows already limited to r.
func MonthlySeries(sales []Sale, expenses []ExpenseTransaction, r DateRange, fallbackYear int) []MonthTotals {
	first, last := 0, 0
	see := func(d Date) {
		y := d.Year()
		if first == 0 || y < first {
			first = y
		}
		if y > last {
			last = y
		}
	}
	for _, s := range sales {
		see(s.Date)
	}
	for _, e := range expenses {
		see(e.Date)
	}
	if first == 0 {
		first, last = fallbackYear, fallbackYear
	}

	var out []MonthTotals
	for y := first; y <= last; y++ {
		for _, m := range MonthlyBreakdown(sales, expenses, y) {
			monthStart := NewDate(y, m.Month, 1)
			monthEnd := NewDate(y, m.Month+1, 1).AddDays(-1)
			if !r.From.IsZero() && monthEnd.Before(r.From) {
				continue
			}
			if !r.To.IsZero() && monthStart.After(r.To) {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

// LineTotal is unit × pricePerUnit, rounded half-up to the paisa. A product beyond
// MaxPaise yields zero; ExpenseItem.Validate rejects such items before they are stored.
func LineTotal(unit decimal.Decimal, pricePerUnit Money) Money {
	m, _ := lineTotal(unit, pricePerUnit)
	return m
}

func lineTotal(unit decimal.Decimal, pricePerUnit Money) (Money, error) {
	return paiseFromDecimal(unit.Mul(decimal.NewFromInt(pricePerUnit.Paise)))
}

// GrandTotal sums the line totals of items, recomputing each from unit and price.
func GrandTotal(items []ExpenseItem) Money {
	var sum Money
	for _, it := range items {
		sum = sum.Add(LineTotal(it.Unit, it.PricePerUnit))
	}
	return sum
}

// FilterSales keeps sales inside r and, when method is non-empty, with that method.
func FilterSales(sales []Sale, r DateRange, method PaymentMethod) []Sale {
	return filter(sales, r, method)
}

// FilterExpenses keeps expenses inside r and, when method is non-empty, with that method.
func FilterExpenses(expenses []ExpenseTransaction, r DateRange, method PaymentMethod) []ExpenseTransaction {
	return filter(expenses, r, method)
}

func filter[R Record](records []R, r DateRange, method PaymentMethod) []R {
	out := make([]R, 0, len(records))
	for _, rec := range records {
		if !r.Contains(rec.Day()) {
			continue
		}
		if method != "" && rec.Method() != method {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Summarize computes the dashboard bundle over one row set.
func Summarize(sales []Sale, expenses []ExpenseTransaction, windowDays int, ref Date) Summary {
	totalSales := TotalAmount(sales)
	totalExpenses := TotalAmount(expenses)
	return Summary{
		TotalSales:      totalSales,
		TotalExpenses:   totalExpenses,
		Profit:          totalSales.Sub(totalExpenses),
		Balances:        Reconcile(sales, expenses),
		ByCategory:      GroupByCategory(sales),
		ByExpenseItem:   GroupExpensesByItem(expenses),
		ByPaymentMethod: SplitByPaymentMethod(sales, expenses),
		Daily:           BucketByDay(sales, expenses, windowDays, ref),
	}
}
