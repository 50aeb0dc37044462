package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"khata/internal/core"
	"khata/internal/ports"

	_ "modernc.org/sqlite"
)

// Fixed width so updated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func rangeClause(column string, dr core.DateRange, args []any) (string, []any) {
	var sb strings.Builder
	if !dr.From.IsZero() {
		sb.WriteString(" AND " + column + " >= ?")
		args = append(args, dr.From.String())
	}
	if !dr.To.IsZero() {
		sb.WriteString(" AND " + column + " <= ?")
		args = append(args, dr.To.String())
	}
	return sb.String(), args
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ports.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const saleColumns = `id, owner_id, sale_date, amount_paise, payment_type, note, category`

func scanSale(row rowScanner) (core.Sale, error) {
	var (
		s    core.Sale
		date string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &date, &s.Amount.Paise, &s.PaymentMethod, &s.Note, &s.Category); err != nil {
		return core.Sale{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Sale{}, fmt.Errorf("sale %d date %q: %w", s.ID, date, err)
	}
	s.Date = d
	return s, nil
}

// ListSales implements ports.SaleRepository
func (r *SQLiteRepository) ListSales(ctx context.Context, ownerID string, dr core.DateRange) ([]core.Sale, error) {
	where, args := rangeClause("sale_date", dr, []any{ownerID})
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE owner_id = ?`+where+` ORDER BY sale_date DESC, id DESC`, args...)
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

func (r *SQLiteRepository) GetSale(ctx context.Context, ownerID string, id int64) (core.Sale, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ? AND owner_id = ?`, id, ownerID)
	s, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sale{}, notFound("sale", id)
	}
	if err != nil {
		return core.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) CreateSale(ctx context.Context, s core.Sale) (core.Sale, error) {
	if s.OwnerID == "" {
		return core.Sale{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	now := r.stamp()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (owner_id, sale_date, amount_paise, payment_type, note, category, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.OwnerID, s.Date.String(), s.Amount.Paise, string(s.PaymentMethod), s.Note, s.Category, now, now)
	if err != nil {
		return core.Sale{}, fmt.Errorf("insert sale: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return core.Sale{}, fmt.Errorf("sale id: %w", err)
	}

	slog.DebugContext(ctx, "Sale saved to SQLite",
		"id", s.ID,
		"amount_paise", s.Amount.Paise,
		"payment_type", s.PaymentMethod,
		"date", s.Date.String())
	return s, nil
}

func (r *SQLiteRepository) UpdateSale(ctx context.Context, s core.Sale) (core.Sale, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales SET sale_date = ?, amount_paise = ?, payment_type = ?, note = ?, category = ?,
		        updated_at = ?, mirrored_at = NULL
		 WHERE id = ? AND owner_id = ?`,
		s.Date.String(), s.Amount.Paise, string(s.PaymentMethod), s.Note, s.Category, r.stamp(), s.ID, s.OwnerID)
	if err != nil {
		return core.Sale{}, fmt.Errorf("update sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Sale{}, notFound("sale", s.ID)
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSale(ctx context.Context, ownerID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("sale", id)
	}
	return nil
}

const expenseColumns = `id, owner_id, expense_date, payment_mode, note, receipt_url, grand_total_paise`

func scanExpense(row rowScanner) (core.ExpenseTransaction, error) {
	var (
		e    core.ExpenseTransaction
		date string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &date, &e.PaymentMethod, &e.Note, &e.ReceiptRef, &e.GrandTotal.Paise); err != nil {
		return core.ExpenseTransaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.ExpenseTransaction{}, fmt.Errorf("expense %d date %q: %w", e.ID, date, err)
	}
	e.Date = d
	return e, nil
}

func (r *SQLiteRepository) ListExpenseTransactions(ctx context.Context, ownerID string, dr core.DateRange) ([]core.ExpenseTransaction, error) {
	where, args := rangeClause("expense_date", dr, []any{ownerID})
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expense_transactions WHERE owner_id = ?`+where+` ORDER BY expense_date DESC, id DESC`, args...)
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

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listItems(ctx context.Context, q querier, ownerID string, ids []int64) ([]core.ExpenseItem, error) {
	if len(ids) == 0 {
		return []core.ExpenseItem{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx,
		`SELECT id, transaction_id, owner_id, item_name, unit, price_per_unit_paise, total_paise
		 FROM expense_items WHERE owner_id = ? AND transaction_id IN (`+placeholders+`)
		 ORDER BY transaction_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query expense items: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExpenseItem, 0)
	for rows.Next() {
		var it core.ExpenseItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.OwnerID, &it.Name, &it.Unit, &it.PricePerUnit.Paise, &it.LineTotal.Paise); err != nil {
			return nil, fmt.Errorf("scan expense item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListExpenseItems(ctx context.Context, ownerID string, transactionIDs []int64) ([]core.ExpenseItem, error) {
	return listItems(ctx, r.db, ownerID, transactionIDs)
}

func (r *SQLiteRepository) GetExpenseTransaction(ctx context.Context, ownerID string, id int64) (core.ExpenseTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expense_transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseTransaction{}, notFound("expense", id)
	}
	if err != nil {
		return core.ExpenseTransaction{}, fmt.Errorf("get expense: %w", err)
	}
	if e.Items, err = listItems(ctx, r.db, ownerID, []int64{id}); err != nil {
		return core.ExpenseTransaction{}, err
	}
	return e, nil
}

// CreateExpenseTransaction inserts the parent and its items in one transaction.
func (r *SQLiteRepository) CreateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	if e.OwnerID == "" {
		return core.ExpenseTransaction{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e.Recompute()
		now := r.stamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expense_transactions (owner_id, expense_date, payment_mode, note, receipt_url, grand_total_paise, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.OwnerID, e.Date.String(), string(e.PaymentMethod), e.Note, e.ReceiptRef, e.GrandTotal.Paise, now, now)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("expense id: %w", err)
		}
		return insertItems(ctx, tx, &e)
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"items", len(e.Items),
		"grand_total_paise", e.GrandTotal.Paise)
	return e, nil
}

// UpdateExpenseTransaction rewrites the parent and replaces every item inside one
// transaction, so no reader sees a grand total that disagrees with the items.
func (r *SQLiteRepository) UpdateExpenseTransaction(ctx context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e.Recompute()
		res, err := tx.ExecContext(ctx,
			`UPDATE expense_transactions
			 SET expense_date = ?, payment_mode = ?, note = ?, receipt_url = ?, grand_total_paise = ?,
			     updated_at = ?, mirrored_at = NULL
			 WHERE id = ? AND owner_id = ?`,
			e.Date.String(), string(e.PaymentMethod), e.Note, e.ReceiptRef, e.GrandTotal.Paise, r.stamp(), e.ID, e.OwnerID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("expense", e.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_items WHERE transaction_id = ?`, e.ID); err != nil {
			return fmt.Errorf("delete expense items: %w", err)
		}
		return insertItems(ctx, tx, &e)
	})
	if err != nil {
		return core.ExpenseTransaction{}, err
	}
	return e, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, e *core.ExpenseTransaction) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expense_items (transaction_id, owner_id, item_name, unit, price_per_unit_paise, total_paise)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i := range e.Items {
		it := &e.Items[i]
		it.TransactionID = e.ID
		it.OwnerID = e.OwnerID
		res, err := stmt.ExecContext(ctx, it.TransactionID, it.OwnerID, strings.TrimSpace(it.Name), it.Unit.String(), it.PricePerUnit.Paise, it.LineTotal.Paise)
		if err != nil {
			return fmt.Errorf("insert expense item %d: %w", i, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("expense item id: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpenseTransaction(ctx context.Context, ownerID string, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM expense_transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("expense", id)
		}
		// Explicit as well as cascading: the pragma may be off on foreign connections.
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_items WHERE transaction_id = ?`, id); err != nil {
			return fmt.Errorf("delete expense items: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, ownerID string) (core.Profile, error) {
	var p core.Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_id, first_name, last_name, avatar_url FROM profiles WHERE owner_id = ?`, ownerID).
		Scan(&p.OwnerID, &p.FirstName, &p.LastName, &p.AvatarRef)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", ownerID, ports.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if p.OwnerID == "" {
		return core.Profile{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (owner_id, first_name, last_name, avatar_url, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   first_name = excluded.first_name, last_name = excluded.last_name,
		   avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`,
		p.OwnerID, p.FirstName, p.LastName, p.AvatarRef, r.stamp())
	if err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

// ListUnmirrored returns rows changed since they were last copied to the mirror,
// oldest change first.
func (r *SQLiteRepository) ListUnmirrored(ctx context.Context, limit int) ([]ports.PendingMirror, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, id, owner_id, updated_at FROM (
		   SELECT 'sale' AS kind, id, owner_id, updated_at FROM sales WHERE mirrored_at IS NULL
		   UNION ALL
		   SELECT 'expense' AS kind, id, owner_id, updated_at FROM expense_transactions WHERE mirrored_at IS NULL
		 ) ORDER BY updated_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unmirrored: %w", err)
	}
	defer rows.Close()

	out := make([]ports.PendingMirror, 0)
	for rows.Next() {
		var (
			p       ports.PendingMirror
			updated string
		)
		if err := rows.Scan(&p.Kind, &p.ID, &p.OwnerID, &updated); err != nil {
			return nil, fmt.Errorf("scan unmirrored: %w", err)
		}
		if p.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at of %s %d: %w", p.Kind, p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkMirrored(ctx context.Context, kind ports.RecordKind, id int64) error {
	var table string
	switch kind {
	case ports.KindSale:
		table = "sales"
	case ports.KindExpense:
		table = "expense_transactions"
	default:
		return fmt.Errorf("unsupported record kind: %s", kind)
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE `+table+` SET mirrored_at = ? WHERE id = ?`, r.stamp(), id); err != nil {
		return fmt.Errorf("mark %s mirrored: %w", kind, err)
	}
	return nil
}
