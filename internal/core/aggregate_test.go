package core

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func sale(amount int64, method PaymentMethod, d Date, category string) Sale {
	return Sale{Date: d, Amount: Rupees(amount), PaymentMethod: method, Category: category}
}

func expense(total int64, method PaymentMethod, d Date) ExpenseTransaction {
	return ExpenseTransaction{Date: d, PaymentMethod: method, GrandTotal: Rupees(total)}
}

func item(name string, unit int64, price int64) ExpenseItem {
	return ExpenseItem{Name: name, Unit: decimal.NewFromInt(unit), PricePerUnit: Rupees(price)}
}

func TestScenarioCashOnly(t *testing.T) {
	day := NewDate(2025, 5, 1)
	sales := []Sale{sale(500, Cash, day, "")}
	expenses := []ExpenseTransaction{expense(200, Cash, day)}

	if got := TotalAmount(sales); got != Rupees(500) {
		t.Fatalf("total sales = %v", got)
	}
	if got := TotalAmount(expenses); got != Rupees(200) {
		t.Fatalf("total expenses = %v", got)
	}
	if got := Profit(sales, expenses); got != Rupees(300) {
		t.Fatalf("profit = %v", got)
	}
	b := Reconcile(sales, expenses)
	if b.CashInHand != Rupees(300) || b.BankBalance != (Money{}) {
		t.Fatalf("balances = %+v", b)
	}
}

func TestScenarioBankOnly(t *testing.T) {
	sales := []Sale{sale(1000, Gpay, NewDate(2025, 5, 1), "")}
	b := Reconcile(sales, nil)
	if b.BankBalance != Rupees(1000) || b.CashInHand != (Money{}) {
		t.Fatalf("balances = %+v", b)
	}
	if got := Profit(sales, nil); got != Rupees(1000) {
		t.Fatalf("profit = %v", got)
	}
}

func TestScenarioLineAndGrandTotal(t *testing.T) {
	items := []ExpenseItem{item("a", 3, 50), item("b", 1, 25)}
	if got := LineTotal(items[0].Unit, items[0].PricePerUnit); got != Rupees(150) {
		t.Fatalf("line 0 = %v", got)
	}
	if got := LineTotal(items[1].Unit, items[1].PricePerUnit); got != Rupees(25) {
		t.Fatalf("line 1 = %v", got)
	}
	if got := GrandTotal(items); got != Rupees(175) {
		t.Fatalf("grand total = %v", got)
	}
}

func TestScenarioEmptyWindow(t *testing.T) {
	day0 := NewDate(2025, 3, 2)
	buckets := BucketByDay(nil, nil, 7, day0)
	if len(buckets) != 7 {
		t.Fatalf("got %d buckets", len(buckets))
	}
	for i, b := range buckets {
		want := day0.AddDays(i - 6)
		if !b.Date.Equal(want) {
			t.Fatalf("bucket %d date = %v, want %v", i, b.Date, want)
		}
		if b.SalesTotal != (Money{}) || b.ExpensesTotal != (Money{}) {
			t.Fatalf("bucket %d not zero: %+v", i, b)
		}
	}
	// Window crosses a month boundary: 2025-02-24 .. 2025-03-02.
	if !buckets[0].Date.Equal(NewDate(2025, 2, 24)) {
		t.Fatalf("first bucket = %v", buckets[0].Date)
	}
}

func TestScenarioGroupByCategory(t *testing.T) {
	d := NewDate(2025, 1, 1)
	got := GroupByCategory([]Sale{sale(100, Cash, d, "A"), sale(50, Cash, d, "B"), sale(25, Gpay, d, "A")})
	want := []CategoryAmount{{Name: "A", Amount: Rupees(125)}, {Name: "B", Amount: Rupees(50)}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGroupByCategorySkipsUncategorized(t *testing.T) {
	d := NewDate(2025, 1, 1)
	got := GroupByCategory([]Sale{sale(100, Cash, d, ""), sale(10, Cash, d, "  ")})
	if len(got) != 0 {
		t.Fatalf("expected no groups, got %+v", got)
	}
}

func TestEmptyInputs(t *testing.T) {
	if TotalAmount([]Sale{}) != (Money{}) || TotalAmount([]ExpenseTransaction(nil)) != (Money{}) {
		t.Fatalf("empty total should be zero")
	}
	if Profit(nil, nil) != (Money{}) {
		t.Fatalf("empty profit should be zero")
	}
	if Reconcile(nil, nil) != (Balances{}) {
		t.Fatalf("empty balances should be zero")
	}
	if len(GroupByCategory(nil)) != 0 || len(SplitByPaymentMethod(nil, nil)) != 0 {
		t.Fatalf("empty groupings should be empty")
	}
	if b := BucketByDay(nil, nil, 0, NewDate(2025, 1, 1)); b == nil || len(b) != 0 {
		t.Fatalf("zero window should be an empty, non-nil slice")
	}
}

func TestBucketByDayExcludesOutOfWindow(t *testing.T) {
	ref := NewDate(2025, 6, 10)
	sales := []Sale{
		sale(10, Cash, ref, ""),
		sale(5, Gpay, ref, ""),
		sale(99, Cash, ref.AddDays(-3), ""), // outside a 3-day window
		sale(7, Cash, ref.AddDays(1), ""),   // future
		sale(3, Cash, ref.AddDays(-2), ""),
	}
	expenses := []ExpenseTransaction{expense(4, Cash, ref.AddDays(-1))}

	buckets := BucketByDay(sales, expenses, 3, ref)
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets", len(buckets))
	}
	want := []struct{ sales, expenses int64 }{{3, 0}, {0, 4}, {15, 0}}
	for i, w := range want {
		if buckets[i].SalesTotal != Rupees(w.sales) || buckets[i].ExpensesTotal != Rupees(w.expenses) {
			t.Fatalf("bucket %d = %+v, want %+v", i, buckets[i], w)
		}
	}
}

func TestExpenseTotalPrefersItems(t *testing.T) {
	e := ExpenseTransaction{GrandTotal: Rupees(1), Items: []ExpenseItem{item("a", 2, 10)}}
	if got := e.Total(); got != Rupees(20) {
		t.Fatalf("total = %v, want recomputed 20.00", got)
	}
	e.Items = nil
	if got := e.Total(); got != Rupees(1) {
		t.Fatalf("total without items = %v, want stored 1.00", got)
	}
}

func TestLineTotalFractionalUnit(t *testing.T) {
	unit := decimal.RequireFromString("1.5")
	if got := LineTotal(unit, Money{Paise: 3333}); got.Paise != 5000 { // 49.995 rounds up
		t.Fatalf("got %d", got.Paise)
	}
}

func randomRows(r *rand.Rand, n int) ([]Sale, []ExpenseTransaction) {
	methods := PaymentMethods()
	base := NewDate(2025, 1, 1)
	sales := make([]Sale, n)
	expenses := make([]ExpenseTransaction, n)
	for i := 0; i < n; i++ {
		sales[i] = Sale{
			Date:          base.AddDays(r.Intn(365)),
			Amount:        Money{Paise: 1 + r.Int63n(1_000_000)},
			PaymentMethod: methods[r.Intn(len(methods))],
			Category:      string(rune('A' + r.Intn(4))),
		}
		items := make([]ExpenseItem, 1+r.Intn(3))
		for j := range items {
			items[j] = ExpenseItem{
				Name:         string(rune('p' + r.Intn(4))),
				Unit:         decimal.NewFromInt(1 + r.Int63n(9)),
				PricePerUnit: Money{Paise: 1 + r.Int63n(50_000)},
			}
		}
		expenses[i] = ExpenseTransaction{
			Date:          base.AddDays(r.Intn(365)),
			PaymentMethod: methods[r.Intn(len(methods))],
			Items:         items,
		}
	}
	return sales, expenses
}

func TestAggregationProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		sales, expenses := randomRows(r, r.Intn(40))

		total := TotalAmount(sales)
		shuffled := append([]Sale(nil), sales...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if TotalAmount(shuffled) != total {
			t.Fatalf("round %d: total depends on order", round)
		}

		profit := Profit(sales, expenses)
		b := Reconcile(sales, expenses)
		if b.CashInHand.Add(b.BankBalance) != profit {
			t.Fatalf("round %d: cash %v + bank %v != profit %v", round, b.CashInHand, b.BankBalance, profit)
		}

		var byItem Money
		for _, c := range GroupExpensesByItem(expenses) {
			byItem = byItem.Add(c.Amount)
		}
		if byItem != TotalAmount(expenses) {
			t.Fatalf("round %d: item grouping %v != expenses %v", round, byItem, TotalAmount(expenses))
		}

		var methodSales, methodExpenses Money
		for _, m := range SplitByPaymentMethod(sales, expenses) {
			methodSales = methodSales.Add(m.Sales)
			methodExpenses = methodExpenses.Add(m.Expenses)
		}
		if methodSales != total || methodExpenses != TotalAmount(expenses) {
			t.Fatalf("round %d: payment split does not reconcile", round)
		}

		var yearProfit Money
		for _, m := range MonthlyBreakdown(sales, expenses, 2025) {
			yearProfit = yearProfit.Add(m.Profit)
		}
		in2025 := DateRange{From: NewDate(2025, 1, 1), To: NewDate(2025, 12, 31)}
		want := Profit(FilterSales(sales, in2025, ""), FilterExpenses(expenses, in2025, ""))
		if yearProfit != want {
			t.Fatalf("round %d: monthly profit %v != %v", round, yearProfit, want)
		}

		for _, w := range []int{1, 7, 30} {
			if got := len(BucketByDay(sales, expenses, w, NewDate(2025, 6, 30))); got != w {
				t.Fatalf("round %d: window %d produced %d buckets", round, w, got)
			}
		}
	}
}

func TestLineTotalIndependence(t *testing.T) {
	unit := decimal.NewFromInt(4)
	price := Rupees(12)
	if LineTotal(unit, price) != Rupees(48) {
		t.Fatalf("unexpected line total")
	}
	// Changing only the price needs nothing but the new price and the same unit.
	if LineTotal(unit, Rupees(13)) != Rupees(52) {
		t.Fatalf("unexpected line total after price change")
	}
	if LineTotal(decimal.NewFromInt(5), price) != Rupees(60) {
		t.Fatalf("unexpected line total after unit change")
	}
}

func TestSplitByPaymentMethodOrder(t *testing.T) {
	d := NewDate(2025, 1, 1)
	got := SplitByPaymentMethod(
		[]Sale{sale(10, Cheque, d, ""), sale(5, Cash, d, "")},
		[]ExpenseTransaction{expense(3, Card, d), expense(1, "Crypto", d)},
	)
	want := []PaymentMethod{Cash, Card, Cheque, "Crypto"}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, m := range want {
		if got[i].Method != m {
			t.Fatalf("index %d: got %q, want %q", i, got[i].Method, m)
		}
	}
}

func TestFilterSales(t *testing.T) {
	d := NewDate(2025, 1, 10)
	sales := []Sale{sale(1, Cash, d, ""), sale(2, Gpay, d, ""), sale(3, Cash, d.AddDays(5), "")}
	got := FilterSales(sales, DateRange{To: d}, Cash)
	if len(got) != 1 || got[0].Amount != Rupees(1) {
		t.Fatalf("got %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	ref := NewDate(2025, 4, 30)
	sales := []Sale{sale(500, Cash, ref, "Tea"), sale(1000, Gpay, ref.AddDays(-1), "Snacks")}
	expenses := []ExpenseTransaction{{Date: ref, PaymentMethod: Cash, Items: []ExpenseItem{item("Milk", 3, 50), item("Sugar", 1, 25)}}}

	s := Summarize(sales, expenses, 7, ref)
	if s.TotalSales != Rupees(1500) || s.TotalExpenses != Rupees(175) || s.Profit != Rupees(1325) {
		t.Fatalf("totals = %+v", s)
	}
	if s.Balances.CashInHand != Rupees(325) || s.Balances.BankBalance != Rupees(1000) {
		t.Fatalf("balances = %+v", s.Balances)
	}
	if len(s.Daily) != 7 || s.Daily[6].SalesTotal != Rupees(500) || s.Daily[5].SalesTotal != Rupees(1000) {
		t.Fatalf("daily = %+v", s.Daily)
	}
	if len(s.ByCategory) != 2 || len(s.ByExpenseItem) != 2 || len(s.ByPaymentMethod) != 2 {
		t.Fatalf("groupings = %+v", s)
	}
}

func TestMonthlySeriesSpansYears(t *testing.T) {
	sales := []Sale{
		{Date: NewDate(2024, 12, 20), Amount: Rupees(400), PaymentMethod: Cash},
		{Date: NewDate(2025, 1, 5), Amount: Rupees(600), PaymentMethod: Gpay},
	}
	expenses := []ExpenseTransaction{{
		Date: NewDate(2024, 12, 21), PaymentMethod: Cash, GrandTotal: Rupees(150),
	}}
	r := DateRange{From: NewDate(2024, 12, 1), To: NewDate(2025, 1, 31)}

	rows := MonthlySeries(sales, expenses, r, 2025)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want Dec 2024 and Jan 2025", rows)
	}
	if rows[0].Year != 2024 || rows[0].Month != 12 || rows[1].Year != 2025 || rows[1].Month != 1 {
		t.Fatalf("months = %+v", rows)
	}
	var sum Money
	for _, m := range rows {
		sum = sum.Add(m.Profit)
	}
	if want := Profit(sales, expenses); sum != want {
		t.Fatalf("series profit = %v, want %v", sum, want)
	}

	empty := MonthlySeries(nil, nil, DateRange{}, 2023)
	if len(empty) != 12 || empty[0].Year != 2023 {
		t.Fatalf("empty series = %+v", empty)
	}
}
