// Package postgres implements the Transaction Repository on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"khata/internal/core"
	"khata/internal/ports"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ ports.Repository = (*Repository)(nil)

// NewRepository migrates the schema and opens a pool against dsn.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ownerKey rejects ids that cannot be an owner column value. No row can match
// them, so callers see ErrNotFound rather than a cast failure.
func ownerKey(ownerID string) (string, bool) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// ownerErr is returned by writes whose owner cannot be stored.
func ownerErr(ownerID string) error {
	if ownerID == "" {
		return &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	return &core.ValidationError{Field: "owner_id", Err: core.ErrInvalidOwner}
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ports.ErrNotFound)
}

func rangeClause(column string, dr core.DateRange, args []any) (string, []any) {
	var sb strings.Builder
	if !dr.From.IsZero() {
		args = append(args, dr.From.Time)
		fmt.Fprintf(&sb, " AND %s >= $%d", column, len(args))
	}
	if !dr.To.IsZero() {
		args = append(args, dr.To.Time)
		fmt.Fprintf(&sb, " AND %s <= $%d", column, len(args))
	}
	return sb.String(), args
}

const saleColumns = `id, owner_id::text, sale_date, amount_paise, payment_type, note, category`

func scanSale(row pgx.Row) (core.Sale, error) {
	var (
		s    core.Sale
		date time.Time
		pm   string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &date, &s.Amount.Paise, &pm, &s.Note, &s.Category); err != nil {
		return core.Sale{}, err
	}
	s.Date = core.DateOf(date)
	s.PaymentMethod = core.PaymentMethod(pm)
	return s, nil
}

func (r *Repository) ListSales(ctx context.Context, ownerID string, dr core.DateRange) ([]core.Sale, error) {
	key, ok := ownerKey(ownerID)
	if !ok {
		return []core.Sale{}, nil
	}
	where, args := rangeClause("sale_date", dr, []any{key})
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE owner_id = $1::uuid`+where+` ORDER BY sale_date DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	out := make([]core.Sale, 0)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetSale(ctx context.Context, ownerID string, id int64) (core.Sale, error) {
	key, ok := ownerKey(ownerID)
	if !ok {
		return core.Sale{}, notFound("sale", id)
	}
	s, err := scanSale(r.pool.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1 AND owner_id = $2::uuid`, id, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Sale{}, notFound("sale", id)
	}
	if err != nil {
		return core.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

func (r *Repository) CreateSale(ctx context.Context, s core.Sale) (core.Sale, error) {
	key, ok := ownerKey(s.OwnerID)
	if !ok {
		return core.Sale{}, ownerErr(s.OwnerID)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sales (owner_id, sale_date, amount_paise, payment_type, note, category)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)
		 RETURNING id`,
		key, s.Date.Time, s.Amount.Paise, string(s.PaymentMethod), s.Note, s.Category,
	).Scan(&s.ID)
	if err != nil {
		return core.Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	slog.DebugContext(ctx, "Sale saved to Postgres", "id", s.ID, "amount_paise", s.Amount.Paise)
	return s, nil
}

func (r *Repository) UpdateSale(ctx context.Context, s core.Sale) (core.Sale, error) {
	key, ok := ownerKey(s.OwnerID)
	if !ok {
		return core.Sale{}, notFound("sale", s.ID)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE sales SET sale_date = $1, amount_paise = $2, payment_type = $3, note = $4, category = $5,
		        updated_at = now(), mirrored_at = NULL
		 WHERE id = $6 AND owner_id = $7::uuid`,
		s.Date.Time, s.Amount.Paise, string(s.PaymentMethod), s.Note, s.Category, s.ID, key)
	if err != nil {
		return core.Sale{}, fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Sale{}, notFound("sale", s.ID)
	}
	return s, nil
}

func (r *Repository) DeleteSale(ctx context.Context, ownerID string, id int64) error {
	key, ok := ownerKey(ownerID)
	if !ok {
		return notFound("sale", id)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM sales WHERE id = $1 AND owner_id = $2::uuid`, id, key)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("sale", id)
	}
	return nil
}

const expenseColumns = `id, owner_id::text, expense_date, payment_mode, note, receipt_url, grand_total_paise`

func scanExpense(row pgx.Row) (core.ExpenseTransaction, error) {
	var (
		e    core.ExpenseTransaction
		date time.Time
		pm   string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &date, &pm, &e.Note, &e.ReceiptRef, &e.GrandTotal.Paise); err != nil {
		return core.ExpenseTransaction{}, err
	}
	e.Date = core.DateOf(date)
	e.PaymentMethod = core.PaymentMethod(pm)
	return e, nil
}

func (r *Repository) ListExpenseTransactions(ctx context.Context, ownerID string, dr core.DateRange) ([]core.ExpenseTransaction, error) {
	key, ok := ownerKey(ownerID)
	if !ok {
		return []core.ExpenseTransaction{}, nil
	}
	where, args := rangeClause("expense_date", dr, []any{key})
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expense_transactions WHERE owner_id = $1::uuid`+where+` ORDER BY expense_date DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExpenseTransaction, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) ListExpenseItems(ctx context.Context, ownerID string, transactionIDs []int64) ([]core.ExpenseItem, error) {
	key, ok := ownerKey(ownerID)
	if !ok || len(transactionIDs) == 0 {
		return []core.ExpenseItem{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, transaction_id, owner_id::text, item_name, unit::text, price_per_unit_paise, total_paise
		 FROM expense_items WHERE owner_id = $1::uuid AND transaction_id = ANY($2)
		 ORDER BY transaction_id, id`, key, transactionIDs)
	if err != nil {
		return nil, fmt.Errorf("query expense items: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExpenseItem, 0)
	for rows.Next() {
		var (
			it   core.ExpenseItem
			unit string
		)
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.OwnerID, &it.Name, &unit, &it.PricePerUnit.Paise, &it.LineTotal.Paise); err != nil {
			return nil, fmt.Errorf("scan expense item: %w", err)
		}
		if it.Unit, err = decimal.NewFromString(unit); err != nil {
			return nil, fmt.Errorf("expense item %d unit %q: %w", it.ID, unit, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repository) GetExpenseTransaction(ctx context.Context, ownerID string, id int64) (core.ExpenseTransaction, error) {
	key, ok := ownerKey(ownerID)
	if !ok {
		return core.ExpenseTransaction{}, notFound("expense", id)
	}
	e, err := scanExpense(r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expense_transactions WHERE id = $1 AND owner_id = $2::uuid`, id, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ExpenseTransaction{}, notFound("expense", id)
	}
	if err != nil {
		return core.ExpenseTransaction{}, fmt.Errorf("get expense: %w", err)
	}
	if e.Items, err = r.ListExpenseItems(ctx, ownerID, []int64{id}); err != nil {
		return core.ExpenseTransaction{}, err
	}
	return e, nil
}

func (r *Repository) CreateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	key, ok := ownerKey(e.OwnerID)
	if !ok {
		return core.ExpenseTransaction{}, ownerErr(e.OwnerID)
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		e.Recompute()
		err := tx.QueryRow(ctx,
			`INSERT INTO expense_transactions (owner_id, expense_date, payment_mode, note, receipt_url, grand_total_paise)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6)
			 RETURNING id`,
			key, e.Date.Time, string(e.PaymentMethod), e.Note, e.ReceiptRef, e.GrandTotal.Paise,
		).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		return insertItems(ctx, tx, key, &e)
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}

	slog.DebugContext(ctx, "Expense saved to Postgres", "id", e.ID, "items", len(e.Items), "grand_total_paise", e.GrandTotal.Paise)
	return e, nil
}

func (r *Repository) UpdateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	key, ok := ownerKey(e.OwnerID)
	if !ok {
		return core.ExpenseTransaction{}, notFound("expense", e.ID)
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		e.Recompute()
		tag, err := tx.Exec(ctx,
			`UPDATE expense_transactions
			 SET expense_date = $1, payment_mode = $2, note = $3, receipt_url = $4, grand_total_paise = $5,
			     updated_at = now(), mirrored_at = NULL
			 WHERE id = $6 AND owner_id = $7::uuid`,
			e.Date.Time, string(e.PaymentMethod), e.Note, e.ReceiptRef, e.GrandTotal.Paise, e.ID, key)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return notFound("expense", e.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM expense_items WHERE transaction_id = $1`, e.ID); err != nil {
			return fmt.Errorf("delete expense items: %w", err)
		}
		return insertItems(ctx, tx, key, &e)
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}
	return e, nil
}

// insertItems queues every item insert in one batch round trip.
func insertItems(ctx context.Context, tx pgx.Tx, ownerKey string, e *core.ExpenseTransaction) error {
	batch := &pgx.Batch{}
	for i := range e.Items {
		it := &e.Items[i]
		it.TransactionID = e.ID
		batch.Queue(
			`INSERT INTO expense_items (transaction_id, owner_id, item_name, unit, price_per_unit_paise, total_paise)
			 VALUES ($1, $2::uuid, $3, $4::numeric, $5, $6)
			 RETURNING id`,
			e.ID, ownerKey, strings.TrimSpace(it.Name), it.Unit.String(), it.PricePerUnit.Paise, it.LineTotal.Paise)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range e.Items {
		if err := br.QueryRow().Scan(&e.Items[i].ID); err != nil {
			br.Close()
			return fmt.Errorf("insert expense item %d: %w", i, err)
		}
	}
	return br.Close()
}

func (r *Repository) DeleteExpenseTransaction(ctx context.Context, ownerID string, id int64) error {
	key, ok := ownerKey(ownerID)
	if !ok {
		return notFound("expense", id)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM expense_transactions WHERE id = $1 AND owner_id = $2::uuid`, id, key)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("expense", id)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, ownerID string) (core.Profile, error) {
	key, ok := ownerKey(ownerID)
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", ownerID, ports.ErrNotFound)
	}
	var p core.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT owner_id::text, first_name, last_name, avatar_url FROM profiles WHERE owner_id = $1::uuid`, key).
		Scan(&p.OwnerID, &p.FirstName, &p.LastName, &p.AvatarRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", ownerID, ports.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *Repository) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	key, ok := ownerKey(p.OwnerID)
	if !ok {
		return core.Profile{}, ownerErr(p.OwnerID)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (owner_id, first_name, last_name, avatar_url) VALUES ($1::uuid, $2, $3, $4)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
		   avatar_url = EXCLUDED.avatar_url, updated_at = now()`,
		key, p.FirstName, p.LastName, p.AvatarRef)
	if err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (r *Repository) ListUnmirrored(ctx context.Context, limit int) ([]ports.PendingMirror, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, id, owner_id, updated_at FROM (
		   SELECT 'sale' AS kind, id, owner_id::text AS owner_id, updated_at FROM sales WHERE mirrored_at IS NULL
		   UNION ALL
		   SELECT 'expense', id, owner_id::text, updated_at FROM expense_transactions WHERE mirrored_at IS NULL
		 ) pending ORDER BY updated_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unmirrored: %w", err)
	}
	defer rows.Close()

	out := make([]ports.PendingMirror, 0)
	for rows.Next() {
		var (
			p    ports.PendingMirror
			kind string
		)
		if err := rows.Scan(&kind, &p.ID, &p.OwnerID, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unmirrored: %w", err)
		}
		p.Kind = ports.RecordKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) MarkMirrored(ctx context.Context, kind ports.RecordKind, id int64) error {
	var table string
	switch kind {
	case ports.KindSale:
		table = "sales"
	case ports.KindExpense:
		table = "expense_transactions"
	default:
		return fmt.Errorf("unsupported record kind: %s", kind)
	}
	if _, err := r.pool.Exec(ctx, `UPDATE `+table+` SET mirrored_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark %s mirrored: %w", kind, err)
	}
	return nil
}
