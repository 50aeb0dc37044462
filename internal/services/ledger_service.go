package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"khata/internal/amqp"
	"khata/internal/core"
	applog "khata/internal/log"
	"khata/internal/ports"
)

// ErrRepository marks failures of the backing store, as opposed to bad input
// or missing rows.
var ErrRepository = errors.New("repository unavailable")

const maxNameLen = 100

// EventPublisher announces committed writes to the mirror worker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// Invalidator drops cached values derived from an owner's rows.
type Invalidator interface {
	DeletePrefix(prefix string) int
}

// LedgerService orchestrates sale and expense writes: validate, recompute, store,
// invalidate cached summaries, then publish a change event.
type LedgerService struct {
	repo        ports.Repository
	publisher   EventPublisher
	invalidates []Invalidator
}

func NewLedgerService(repo ports.Repository, publisher EventPublisher, invalidates ...Invalidator) *LedgerService {
	return &LedgerService{
		repo:        repo,
		publisher:   publisher,
		invalidates: invalidates,
	}
}

// OwnerKeyPrefix is the cache key prefix shared by every entry of one owner.
func OwnerKeyPrefix(ownerID string) string {
	return ownerID + "|"
}

// repoErr passes not-found and validation errors through and tags everything else.
func repoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *core.ValidationError
	if errors.Is(err, ports.ErrNotFound) || errors.As(err, &ve) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRepository, err)
}

func (s *LedgerService) ListSales(ctx context.Context, ownerID string, r core.DateRange, method core.PaymentMethod) ([]core.Sale, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, ownerID, r)
	if err != nil {
		return nil, repoErr("list sales", err)
	}
	return core.FilterSales(sales, core.DateRange{}, method), nil
}

func (s *LedgerService) GetSale(ctx context.Context, ownerID string, id int64) (core.Sale, error) {
	sale, err := s.repo.GetSale(ctx, ownerID, id)
	return sale, repoErr("get sale", err)
}

func normalizeSale(ownerID string, sale *core.Sale) {
	sale.OwnerID = ownerID
	sale.Note = strings.TrimSpace(sale.Note)
	sale.Category = strings.TrimSpace(sale.Category)
}

func (s *LedgerService) CreateSale(ctx context.Context, ownerID string, sale core.Sale) (core.Sale, error) {
	normalizeSale(ownerID, &sale)
	sale.ID = 0
	if err := sale.Validate(); err != nil {
		return core.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return core.Sale{}, repoErr("create sale", err)
	}

	slog.InfoContext(ctx, "Sale created",
		applog.FieldRecordID, created.ID,
		applog.FieldAmount, created.Amount.Paise,
		"payment_type", created.PaymentMethod)
	s.afterWrite(ctx, ports.KindSale, amqp.ActionUpsert, created.ID, ownerID)
	return created, nil
}

func (s *LedgerService) UpdateSale(ctx context.Context, ownerID string, id int64, sale core.Sale) (core.Sale, error) {
	normalizeSale(ownerID, &sale)
	sale.ID = id
	if err := sale.Validate(); err != nil {
		return core.Sale{}, err
	}

	updated, err := s.repo.UpdateSale(ctx, sale)
	if err != nil {
		return core.Sale{}, repoErr("update sale", err)
	}

	slog.InfoContext(ctx, "Sale updated", applog.FieldRecordID, id, applog.FieldAmount, updated.Amount.Paise)
	s.afterWrite(ctx, ports.KindSale, amqp.ActionUpsert, id, ownerID)
	return updated, nil
}

func (s *LedgerService) DeleteSale(ctx context.Context, ownerID string, id int64) error {
	if err := s.repo.DeleteSale(ctx, ownerID, id); err != nil {
		return repoErr("delete sale", err)
	}
	slog.InfoContext(ctx, "Sale deleted", applog.FieldRecordID, id)
	s.afterWrite(ctx, ports.KindSale, amqp.ActionDelete, id, ownerID)
	return nil
}

// ListExpenses returns the owner's expense transactions; items are attached when
// withItems is set.
func (s *LedgerService) ListExpenses(ctx context.Context, ownerID string, r core.DateRange, method core.PaymentMethod, withItems bool) ([]core.ExpenseTransaction, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenseTransactions(ctx, ownerID, r)
	if err != nil {
		return nil, repoErr("list expenses", err)
	}
	expenses = core.FilterExpenses(expenses, core.DateRange{}, method)
	if !withItems {
		return expenses, nil
	}
	if err := attachItems(ctx, s.repo, ownerID, expenses); err != nil {
		return nil, repoErr("list expense items", err)
	}
	return expenses, nil
}

func (s *LedgerService) GetExpense(ctx context.Context, ownerID string, id int64) (core.ExpenseTransaction, error) {
	e, err := s.repo.GetExpenseTransaction(ctx, ownerID, id)
	return e, repoErr("get expense", err)
}

func normalizeExpense(ownerID string, e *core.ExpenseTransaction) {
	e.OwnerID = ownerID
	e.Note = strings.TrimSpace(e.Note)
	e.ReceiptRef = strings.TrimSpace(e.ReceiptRef)
	for i := range e.Items {
		e.Items[i].ID = 0
		e.Items[i].Name = strings.TrimSpace(e.Items[i].Name)
	}
}

// CreateExpense stores a transaction with its items. Client-sent line and grand
// totals are discarded and recomputed.
func (s *LedgerService) CreateExpense(ctx context.Context, ownerID string, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	normalizeExpense(ownerID, &e)
	e.ID = 0
	if err := e.Validate(); err != nil {
		return core.ExpenseTransaction{}, err
	}
	e.Recompute()

	created, err := s.repo.CreateExpenseTransaction(ctx, e)
	if err != nil {
		return core.ExpenseTransaction{}, repoErr("create expense", err)
	}

	slog.InfoContext(ctx, "Expense created",
		applog.FieldRecordID, created.ID,
		applog.FieldItems, len(created.Items),
		applog.FieldAmount, created.GrandTotal.Paise,
		"payment_mode", created.PaymentMethod)
	s.afterWrite(ctx, ports.KindExpense, amqp.ActionUpsert, created.ID, ownerID)
	return created, nil
}

// UpdateExpense replaces the transaction fields and its whole item list.
func (s *LedgerService) UpdateExpense(ctx context.Context, ownerID string, id int64, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	normalizeExpense(ownerID, &e)
	e.ID = id
	if err := e.Validate(); err != nil {
		return core.ExpenseTransaction{}, err
	}
	e.Recompute()

	updated, err := s.repo.UpdateExpenseTransaction(ctx, e)
	if err != nil {
		return core.ExpenseTransaction{}, repoErr("update expense", err)
	}

	slog.InfoContext(ctx, "Expense updated", applog.FieldRecordID, id, applog.FieldItems, len(updated.Items), applog.FieldAmount, updated.GrandTotal.Paise)
	s.afterWrite(ctx, ports.KindExpense, amqp.ActionUpsert, id, ownerID)
	return updated, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, ownerID string, id int64) error {
	if err := s.repo.DeleteExpenseTransaction(ctx, ownerID, id); err != nil {
		return repoErr("delete expense", err)
	}
	slog.InfoContext(ctx, "Expense deleted", applog.FieldRecordID, id)
	s.afterWrite(ctx, ports.KindExpense, amqp.ActionDelete, id, ownerID)
	return nil
}

func (s *LedgerService) GetProfile(ctx context.Context, ownerID string) (core.Profile, error) {
	p, err := s.repo.GetProfile(ctx, ownerID)
	if errors.Is(err, ports.ErrNotFound) {
		return core.Profile{OwnerID: ownerID}, nil
	}
	return p, repoErr("get profile", err)
}

func (s *LedgerService) UpdateProfile(ctx context.Context, ownerID string, p core.Profile) (core.Profile, error) {
	p.OwnerID = ownerID
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.AvatarRef = strings.TrimSpace(p.AvatarRef)
	if len(p.FirstName) > maxNameLen {
		return core.Profile{}, &core.ValidationError{Field: "first_name", Err: core.ErrTooLong}
	}
	if len(p.LastName) > maxNameLen {
		return core.Profile{}, &core.ValidationError{Field: "last_name", Err: core.ErrTooLong}
	}

	saved, err := s.repo.UpsertProfile(ctx, p)
	if err != nil {
		return core.Profile{}, repoErr("update profile", err)
	}
	s.invalidate(ownerID)
	return saved, nil
}

func (s *LedgerService) afterWrite(ctx context.Context, kind ports.RecordKind, action amqp.Action, id int64, ownerID string) {
	s.invalidate(ownerID)

	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping change event", applog.FieldKind, kind, applog.FieldRecordID, id)
		return
	}
	if err := s.publisher.PublishEvent(ctx, amqp.NewTransactionEvent(kind, action, id, ownerID)); err != nil {
		// The row is committed; the mirror sweep picks it up later.
		fields := applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithRecord(ownerID, string(kind), id).
			WithError(err)
		fields["action"] = action
		slog.ErrorContext(ctx, "Failed to publish change event", fields.ToSlice()...)
	}
}

func (s *LedgerService) invalidate(ownerID string) {
	for _, c := range s.invalidates {
		c.DeletePrefix(OwnerKeyPrefix(ownerID))
	}
}

// attachItems loads items for every transaction in one query and hangs them on
// their parents in place.
func attachItems(ctx context.Context, repo ports.ExpenseRepository, ownerID string, expenses []core.ExpenseTransaction) error {
	if len(expenses) == 0 {
		return nil
	}
	ids := make([]int64, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	items, err := repo.ListExpenseItems(ctx, ownerID, ids)
	if err != nil {
		return err
	}
	byTx := make(map[int64][]core.ExpenseItem, len(expenses))
	for _, it := range items {
		byTx[it.TransactionID] = append(byTx[it.TransactionID], it)
	}
	for i := range expenses {
		expenses[i].Items = byTx[expenses[i].ID]
	}
	return nil
}
