package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Cash         PaymentMethod = "Cash"
	Gpay         PaymentMethod = "Gpay"
	Card         PaymentMethod = "Card"
	BankTransfer PaymentMethod = "Bank Transfer"
	Cheque       PaymentMethod = "Cheque"
	Other        PaymentMethod = "Other"
)

const (
	maxNoteLen     = 500
	maxItemNameLen = 200
	dateLayout     = "2006-01-02"
)

type (
	PaymentMethod string

	// Date is a calendar day. The time component is always midnight UTC.
	Date struct {
		time.Time
	}

	// DateRange is an inclusive day range. A zero bound is unbounded.
	DateRange struct {
		From Date
		To   Date
	}

	Sale struct {
		ID            int64         `json:"id"`
		OwnerID       string        `json:"owner_id"`
		Date          Date          `json:"date"`
		Amount        Money         `json:"amount"`
		PaymentMethod PaymentMethod `json:"payment_type"`
		Note          string        `json:"note,omitempty"`
		Category      string        `json:"category,omitempty"` // empty means uncategorized
	}

	ExpenseItem struct {
		ID            int64           `json:"id"`
		TransactionID int64           `json:"transaction_id"`
		OwnerID       string          `json:"owner_id"`
		Name          string          `json:"item_name"`
		Unit          decimal.Decimal `json:"unit"`
		PricePerUnit  Money           `json:"price_per_unit"`
		LineTotal     Money           `json:"total"`
	}

	ExpenseTransaction struct {
		ID            int64         `json:"id"`
		OwnerID       string        `json:"owner_id"`
		Date          Date          `json:"date"`
		PaymentMethod PaymentMethod `json:"payment_mode"`
		Note          string        `json:"note,omitempty"`
		ReceiptRef    string        `json:"receipt_url,omitempty"`
		GrandTotal    Money         `json:"grand_total"`
		Items         []ExpenseItem `json:"items,omitempty"`
	}

	Profile struct {
		OwnerID   string `json:"owner_id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		AvatarRef string `json:"avatar_url,omitempty"`
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidUnit          = errors.New("invalid unit")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrEmptyItemName        = errors.New("empty item name")
	ErrNoItems              = errors.New("expense has no items")
	ErrTooLong              = errors.New("value too long")
	ErrEmptyOwner           = errors.New("empty owner")
	ErrInvalidOwner         = errors.New("invalid owner")
)

// ValidationError reports which input field failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

var paymentMethods = []PaymentMethod{Cash, Gpay, Card, BankTransfer, Cheque, Other}

// PaymentMethods returns the recognized payment methods in display order.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func (p PaymentMethod) Validate() error {
	for _, m := range paymentMethods {
		if p == m {
			return nil
		}
	}
	return ErrInvalidPaymentMethod
}

// IsCash reports whether p belongs to the cash bucket. Only the exact value "Cash" does.
func (p PaymentMethod) IsCash() bool {
	return p == Cash
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Equal reports calendar-day equality.
func (d Date) Equal(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month() && d.Day() == o.Day()
}

func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Contains reports whether d falls within the range, bounds inclusive.
func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return invalid("to", ErrInvalidDate)
	}
	return nil
}

func (r DateRange) String() string {
	return r.From.String() + ".." + r.To.String()
}

func validateNote(field, note string) error {
	if len(note) > maxNoteLen {
		return invalid(field, ErrTooLong)
	}
	return nil
}

func (s Sale) Validate() error {
	if err := s.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := s.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if err := s.PaymentMethod.Validate(); err != nil {
		return invalid("payment_type", err)
	}
	if len(s.Category) > maxItemNameLen {
		return invalid("category", ErrTooLong)
	}
	return validateNote("note", s.Note)
}

func (it ExpenseItem) Validate() error {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return invalid("item_name", ErrEmptyItemName)
	}
	if len(name) > maxItemNameLen {
		return invalid("item_name", ErrTooLong)
	}
	if !it.Unit.IsPositive() {
		return invalid("unit", ErrInvalidUnit)
	}
	if err := it.PricePerUnit.Validate(); err != nil {
		return invalid("price_per_unit", err)
	}
	// The line total must be a positive amount in range after rounding.
	if lt, err := lineTotal(it.Unit, it.PricePerUnit); err != nil || lt.Paise <= 0 {
		return invalid("unit", ErrInvalidAmount)
	}
	return nil
}

func (e ExpenseTransaction) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := e.PaymentMethod.Validate(); err != nil {
		return invalid("payment_mode", err)
	}
	if err := validateNote("note", e.Note); err != nil {
		return err
	}
	if len(e.Items) == 0 {
		return invalid("items", ErrNoItems)
	}
	var total int64
	for i, it := range e.Items {
		if err := it.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return invalid(fmt.Sprintf("items[%d].%s", i, ve.Field), ve.Err)
			}
			return err
		}
		total += LineTotal(it.Unit, it.PricePerUnit).Paise
		if total > MaxPaise {
			return invalid("items", ErrInvalidAmount)
		}
	}
	return nil
}

// Recompute refreshes the item's line total from unit and price.
func (it *ExpenseItem) Recompute() {
	it.LineTotal = LineTotal(it.Unit, it.PricePerUnit)
}

// Recompute refreshes every line total and then the grand total. Stored totals are
// never trusted; this runs on every write path.
func (e *ExpenseTransaction) Recompute() {
	for i := range e.Items {
		e.Items[i].Recompute()
		e.Items[i].OwnerID = e.OwnerID
		e.Items[i].TransactionID = e.ID
	}
	e.GrandTotal = GrandTotal(e.Items)
}

// Total is the sale amount.
func (s Sale) Total() Money {
	return s.Amount
}

// Total is the expense grand total, recomputed from items when they are loaded.
func (e ExpenseTransaction) Total() Money {
	if len(e.Items) > 0 {
		return GrandTotal(e.Items)
	}
	return e.GrandTotal
}

func (s Sale) Method() PaymentMethod {
	return s.PaymentMethod
}

func (e ExpenseTransaction) Method() PaymentMethod {
	return e.PaymentMethod
}

func (s Sale) Day() Date {
	return s.Date
}

func (e ExpenseTransaction) Day() Date {
	return e.Date
}

// DisplayName joins the non-empty name parts.
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
