// Package memory is an in-process Transaction Repository used for local runs and tests.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"khata/internal/core"
	applog "khata/internal/log"
	"khata/internal/ports"
)

type mirrorKey struct {
	kind ports.RecordKind
	id   int64
}

type Store struct {
	mu       sync.Mutex
	nextID   int64
	sales    map[int64]core.Sale
	expenses map[int64]core.ExpenseTransaction
	profiles map[string]core.Profile
	pending  map[mirrorKey]ports.PendingMirror
	now      func() time.Time
}

var _ ports.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		sales:    make(map[int64]core.Sale),
		expenses: make(map[int64]core.ExpenseTransaction),
		profiles: make(map[string]core.Profile),
		pending:  make(map[mirrorKey]ports.PendingMirror),
		now:      time.Now,
	}
}

// seedLine is the JSON-lines seed format: one object per line with a "kind" of
// "sale" or "expense" and the record fields.
type seedLine struct {
	Kind    ports.RecordKind        `json:"kind"`
	Sale    core.Sale               `json:"sale"`
	Expense core.ExpenseTransaction `json:"expense"`
}

// NewFromFiles creates a store seeded from base/seed.jsonl when present.
// Lines that do not decode or validate are logged and skipped.
func NewFromFiles(base string) *Store {
	s := New()
	path := filepath.Join(base, "seed.jsonl")
	loaded := 0
	for _, line := range readLines(path) {
		if err := s.seed(line.text); err != nil {
			slog.Warn("Skipping seed line", "path", path, "line", line.n, applog.FieldError, err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		slog.Info("Memory store seeded", "path", path, "records", loaded)
	}
	return s
}

func (s *Store) seed(text string) error {
	var sl seedLine
	if err := json.Unmarshal([]byte(text), &sl); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	ctx := context.Background()
	switch sl.Kind {
	case ports.KindSale:
		if sl.Sale.OwnerID == "" {
			return core.ErrEmptyOwner
		}
		if err := sl.Sale.Validate(); err != nil {
			return err
		}
		_, err := s.CreateSale(ctx, sl.Sale)
		return err
	case ports.KindExpense:
		if sl.Expense.OwnerID == "" {
			return core.ErrEmptyOwner
		}
		if err := sl.Expense.Validate(); err != nil {
			return err
		}
		_, err := s.CreateExpenseTransaction(ctx, sl.Expense)
		return err
	default:
		return fmt.Errorf("unknown kind %q", sl.Kind)
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) ListSales(_ context.Context, ownerID string, r core.DateRange) ([]core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Sale, 0)
	for _, sale := range s.sales {
		if sale.OwnerID == ownerID && r.Contains(sale.Date) {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i].Date, out[j].Date, out[i].ID, out[j].ID) })
	return out, nil
}

func (s *Store) GetSale(_ context.Context, ownerID string, id int64) (core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok || sale.OwnerID != ownerID {
		return core.Sale{}, fmt.Errorf("sale %d: %w", id, ports.ErrNotFound)
	}
	return sale, nil
}

func (s *Store) CreateSale(_ context.Context, sale core.Sale) (core.Sale, error) {
	if sale.OwnerID == "" {
		return core.Sale{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sale.ID = s.nextID
	s.sales[sale.ID] = sale
	s.markPending(ports.KindSale, sale.ID, sale.OwnerID)
	return sale, nil
}

func (s *Store) UpdateSale(_ context.Context, sale core.Sale) (core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sales[sale.ID]
	if !ok || cur.OwnerID != sale.OwnerID {
		return core.Sale{}, fmt.Errorf("sale %d: %w", sale.ID, ports.ErrNotFound)
	}
	s.sales[sale.ID] = sale
	s.markPending(ports.KindSale, sale.ID, sale.OwnerID)
	return sale, nil
}

func (s *Store) DeleteSale(_ context.Context, ownerID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sales[id]
	if !ok || cur.OwnerID != ownerID {
		return fmt.Errorf("sale %d: %w", id, ports.ErrNotFound)
	}
	delete(s.sales, id)
	delete(s.pending, mirrorKey{ports.KindSale, id})
	return nil
}

func (s *Store) ListExpenseTransactions(_ context.Context, ownerID string, r core.DateRange) ([]core.ExpenseTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseTransaction, 0)
	for _, e := range s.expenses {
		if e.OwnerID == ownerID && r.Contains(e.Date) {
			e.Items = nil
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i].Date, out[j].Date, out[i].ID, out[j].ID) })
	return out, nil
}

func (s *Store) ListExpenseItems(_ context.Context, ownerID string, transactionIDs []int64) ([]core.ExpenseItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseItem, 0)
	for _, id := range transactionIDs {
		e, ok := s.expenses[id]
		if !ok || e.OwnerID != ownerID {
			continue
		}
		out = append(out, e.Items...)
	}
	return out, nil
}

func (s *Store) GetExpenseTransaction(_ context.Context, ownerID string, id int64) (core.ExpenseTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return core.ExpenseTransaction{}, fmt.Errorf("expense %d: %w", id, ports.ErrNotFound)
	}
	e.Items = append([]core.ExpenseItem(nil), e.Items...)
	return e, nil
}

func (s *Store) CreateExpenseTransaction(_ context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	if e.OwnerID == "" {
		return core.ExpenseTransaction{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.storeExpense(e)
	return s.expenses[e.ID], nil
}

func (s *Store) UpdateExpenseTransaction(_ context.Context, e core.ExpenseTransaction) (core.ExpenseTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return core.ExpenseTransaction{}, fmt.Errorf("expense %d: %w", e.ID, ports.ErrNotFound)
	}
	s.storeExpense(e)
	return s.expenses[e.ID], nil
}

// storeExpense replaces the transaction and its items under the lock, so readers
// never observe a parent without its items.
func (s *Store) storeExpense(e core.ExpenseTransaction) {
	items := make([]core.ExpenseItem, len(e.Items))
	copy(items, e.Items)
	e.Items = items
	e.Recompute()
	for i := range e.Items {
		s.nextID++
		e.Items[i].ID = s.nextID
	}
	s.expenses[e.ID] = e
	s.markPending(ports.KindExpense, e.ID, e.OwnerID)
}

func (s *Store) DeleteExpenseTransaction(_ context.Context, ownerID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[id]
	if !ok || cur.OwnerID != ownerID {
		return fmt.Errorf("expense %d: %w", id, ports.ErrNotFound)
	}
	delete(s.expenses, id)
	delete(s.pending, mirrorKey{ports.KindExpense, id})
	return nil
}

func (s *Store) GetProfile(_ context.Context, ownerID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", ownerID, ports.ErrNotFound)
	}
	return p, nil
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	if p.OwnerID == "" {
		return core.Profile{}, &core.ValidationError{Field: "owner_id", Err: core.ErrEmptyOwner}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.OwnerID] = p
	return p, nil
}

func (s *Store) ListUnmirrored(_ context.Context, limit int) ([]ports.PendingMirror, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.PendingMirror, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkMirrored(_ context.Context, kind ports.RecordKind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, mirrorKey{kind, id})
	return nil
}

func (s *Store) markPending(kind ports.RecordKind, id int64, owner string) {
	s.pending[mirrorKey{kind, id}] = ports.PendingMirror{Kind: kind, ID: id, OwnerID: owner, UpdatedAt: s.now()}
}

func newerFirst(a, b core.Date, aid, bid int64) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aid > bid
}

type numberedLine struct {
	n    int
	text string
}

// readLines returns the non-blank, non-comment lines of path with their
// 1-based line numbers. A missing file yields nothing.
func readLines(path string) []numberedLine {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Cannot open seed file", "path", path, applog.FieldError, err)
		}
		return nil
	}
	defer f.Close()
	var out []numberedLine
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, numberedLine{n: n, text: line})
	}
	if err := sc.Err(); err != nil {
		slog.Warn("Seed file read stopped early", "path", path, "line", n, applog.FieldError, err)
	}
	return out
}
