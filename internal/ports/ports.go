package ports

import (
	"context"
	"errors"
	"time"

	"khata/internal/core"
)

// ErrNotFound is returned for missing rows and for rows owned by someone else.
var ErrNotFound = errors.New("not found")

// RecordKind names the two transaction families.
type RecordKind string

const (
	KindSale    RecordKind = "sale"
	KindExpense RecordKind = "expense"
)

// Ports for outbound adapters. Every operation is scoped to an owner id.
type (
	SaleRepository interface {
		ListSales(ctx context.Context, ownerID string, r core.DateRange) ([]core.Sale, error)
		GetSale(ctx context.Context, ownerID string, id int64) (core.Sale, error)
		CreateSale(ctx context.Context, s core.Sale) (core.Sale, error)
		// UpdateSale replaces the whole record.
		UpdateSale(ctx context.Context, s core.Sale) (core.Sale, error)
		DeleteSale(ctx context.Context, ownerID string, id int64) error
	}

	// ExpenseRepository writes a transaction and its items as one atomic unit.
	// Implementations recompute line and grand totals on every write.
	ExpenseRepository interface {
		// ListExpenseTransactions returns transactions without their items.
		ListExpenseTransactions(ctx context.Context, ownerID string, r core.DateRange) ([]core.ExpenseTransaction, error)
		ListExpenseItems(ctx context.Context, ownerID string, transactionIDs []int64) ([]core.ExpenseItem, error)
		// GetExpenseTransaction returns the transaction with its items.
		GetExpenseTransaction(ctx context.Context, ownerID string, id int64) (core.ExpenseTransaction, error)
		CreateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error)
		// UpdateExpenseTransaction replaces the parent fields and all items.
		UpdateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error)
		DeleteExpenseTransaction(ctx context.Context, ownerID string, id int64) error
	}

	ProfileRepository interface {
		GetProfile(ctx context.Context, ownerID string) (core.Profile, error)
		UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	}

	// MirrorTracker records which rows have reached the spreadsheet mirror.
	MirrorTracker interface {
		ListUnmirrored(ctx context.Context, limit int) ([]PendingMirror, error)
		MarkMirrored(ctx context.Context, kind RecordKind, id int64) error
	}

	// Repository is the full Transaction Repository.
	Repository interface {
		SaleRepository
		ExpenseRepository
		ProfileRepository
		MirrorTracker
		Ping(ctx context.Context) error
		Close() error
	}

	// MirrorWriter receives copies of records for the spreadsheet mirror.
	MirrorWriter interface {
		AppendSale(ctx context.Context, s core.Sale) (rowRef string, err error)
		AppendExpense(ctx context.Context, e core.ExpenseTransaction) (rowRef string, err error)
		Remove(ctx context.Context, kind RecordKind, id int64) error
	}
)

// PendingMirror identifies a row not yet copied to the mirror.
type PendingMirror struct {
	Kind      RecordKind
	ID        int64
	OwnerID   string
	UpdatedAt time.Time
}
