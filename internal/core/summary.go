package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Balances is the payment-method reconciliation of a row set.
type Balances struct {
	CashInHand  Money `json:"cash_in_hand"`
	BankBalance Money `json:"bank_balance"`
}

// MethodAmount holds sales and expense totals for one payment method.
type MethodAmount struct {
	Method   PaymentMethod `json:"payment_method"`
	Sales    Money         `json:"sales"`
	Expenses Money         `json:"expenses"`
}

// DayBucket is one point of the daily chart series.
type DayBucket struct {
	Date          Date  `json:"date"`
	SalesTotal    Money `json:"sales_total"`
	ExpensesTotal Money `json:"expenses_total"`
}

// MonthTotals is one row of a yearly breakdown.
type MonthTotals struct {
	Year     int   `json:"year"`
	Month    int   `json:"month"` // 1-12
	Sales    Money `json:"sales"`
	Expenses Money `json:"expenses"`
	Profit   Money `json:"profit"`
}

// Summary bundles every dashboard figure computed from one filter-scoped row set.
type Summary struct {
	Range           DateRange        `json:"-"`
	TotalSales      Money            `json:"total_sales"`
	TotalExpenses   Money            `json:"total_expenses"`
	Profit          Money            `json:"profit"`
	Balances        Balances         `json:"balances"`
	ByCategory      []CategoryAmount `json:"by_category"`
	ByExpenseItem   []CategoryAmount `json:"by_expense_item"`
	ByPaymentMethod []MethodAmount   `json:"by_payment_method"`
	Daily           []DayBucket      `json:"daily"`
}
