package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"khata/internal/core"
	"khata/internal/ports"
)

const owner = "0d9e3f4a-5b6c-4d7e-8f90-a1b2c3d4e5f6"

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "khata.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "khata.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestSQLiteSales(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.CreateSale(ctx, core.Sale{
		OwnerID: owner, Date: core.NewDate(2025, 3, 1), Amount: core.Rupees(1200),
		PaymentMethod: core.Cash, Note: "counter", Category: "Tea",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateSale(ctx, core.Sale{
		OwnerID: owner, Date: core.NewDate(2025, 3, 4), Amount: core.Money{Paise: 99950}, PaymentMethod: core.BankTransfer,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := repo.ListSales(ctx, owner, core.DateRange{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list: %+v %v", all, err)
	}
	if all[0].PaymentMethod != core.BankTransfer || all[0].Amount.Paise != 99950 {
		t.Fatalf("expected newest first with exact paise, got %+v", all[0])
	}

	ranged, err := repo.ListSales(ctx, owner, core.DateRange{From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 3, 1)})
	if err != nil || len(ranged) != 1 || ranged[0].ID != first.ID {
		t.Fatalf("range: %+v %v", ranged, err)
	}
	if ranged[0].Category != "Tea" || ranged[0].Note != "counter" {
		t.Fatalf("fields lost: %+v", ranged[0])
	}

	first.Amount = core.Rupees(1300)
	if _, err := repo.UpdateSale(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetSale(ctx, owner, first.ID)
	if err != nil || got.Amount != core.Rupees(1300) {
		t.Fatalf("get after update: %+v %v", got, err)
	}

	if _, err := repo.GetSale(ctx, "intruder", first.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("cross-owner get: %v", err)
	}
	if err := repo.DeleteSale(ctx, "intruder", first.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("cross-owner delete: %v", err)
	}
	if err := repo.DeleteSale(ctx, owner, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteSale(ctx, owner, first.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSQLiteExpenseItemsReplacedAtomically(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e, err := repo.CreateExpenseTransaction(ctx, core.ExpenseTransaction{
		OwnerID: owner, Date: core.NewDate(2025, 3, 2), PaymentMethod: core.Gpay,
		GrandTotal: core.Rupees(1),
		Items: []core.ExpenseItem{
			{Name: "Flour", Unit: decimal.RequireFromString("1.5"), PricePerUnit: core.Money{Paise: 3333}},
			{Name: "Oil", Unit: decimal.NewFromInt(2), PricePerUnit: core.Rupees(150)},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.GrandTotal.Paise != 5000+30000 {
		t.Fatalf("grand total = %d", e.GrandTotal.Paise)
	}

	got, err := repo.GetExpenseTransaction(ctx, owner, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Items) != 2 || !got.Items[0].Unit.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("items: %+v", got.Items)
	}

	got.Items = []core.ExpenseItem{{Name: "Salt", Unit: decimal.NewFromInt(1), PricePerUnit: core.Rupees(20)}}
	updated, err := repo.UpdateExpenseTransaction(ctx, got)
	if err != nil || updated.GrandTotal != core.Rupees(20) {
		t.Fatalf("update: %+v %v", updated, err)
	}
	items, err := repo.ListExpenseItems(ctx, owner, []int64{e.ID})
	if err != nil || len(items) != 1 || items[0].Name != "Salt" {
		t.Fatalf("items after update: %+v %v", items, err)
	}

	got.OwnerID = "intruder"
	if _, err := repo.UpdateExpenseTransaction(ctx, got); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("cross-owner update: %v", err)
	}
	items, _ = repo.ListExpenseItems(ctx, owner, []int64{e.ID})
	if len(items) != 1 {
		t.Fatalf("failed update must roll back item replacement, got %+v", items)
	}

	list, err := repo.ListExpenseTransactions(ctx, owner, core.DateRange{})
	if err != nil || len(list) != 1 || list[0].Items != nil || list[0].GrandTotal != core.Rupees(20) {
		t.Fatalf("list: %+v %v", list, err)
	}

	if err := repo.DeleteExpenseTransaction(ctx, owner, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ = repo.ListExpenseItems(ctx, owner, []int64{e.ID})
	if len(items) != 0 {
		t.Fatalf("items survived delete: %+v", items)
	}
}

func TestSQLiteMirrorTracking(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	sale, _ := repo.CreateSale(ctx, core.Sale{OwnerID: owner, Date: core.NewDate(2025, 1, 1), Amount: core.Rupees(5), PaymentMethod: core.Cash})
	exp, _ := repo.CreateExpenseTransaction(ctx, core.ExpenseTransaction{
		OwnerID: owner, Date: core.NewDate(2025, 1, 1), PaymentMethod: core.Cash,
		Items: []core.ExpenseItem{{Name: "Pen", Unit: decimal.NewFromInt(1), PricePerUnit: core.Rupees(10)}},
	})

	pending, err := repo.ListUnmirrored(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending: %+v %v", pending, err)
	}

	if err := repo.MarkMirrored(ctx, ports.KindSale, sale.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = repo.ListUnmirrored(ctx, 10)
	if len(pending) != 1 || pending[0].Kind != ports.KindExpense || pending[0].ID != exp.ID {
		t.Fatalf("pending after mark: %+v", pending)
	}

	sale.Note = "edited"
	if _, err := repo.UpdateSale(ctx, sale); err != nil {
		t.Fatalf("update: %v", err)
	}
	pending, _ = repo.ListUnmirrored(ctx, 1)
	if len(pending) != 1 {
		t.Fatalf("limit not applied: %+v", pending)
	}
	if err := repo.MarkMirrored(ctx, "invoice", 1); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestSQLiteUnmirroredRejectsBadTimestamp(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	sale, err := repo.CreateSale(ctx, core.Sale{OwnerID: owner, Date: core.NewDate(2025, 1, 1), Amount: core.Rupees(5), PaymentMethod: core.Cash})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.db.ExecContext(ctx, `UPDATE sales SET updated_at = 'garbage' WHERE id = ?`, sale.ID); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if pending, err := repo.ListUnmirrored(ctx, 10); err == nil {
		t.Fatalf("expected parse error, got %+v", pending)
	}
}

func TestSQLiteWritesRequireOwner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.CreateSale(ctx, core.Sale{Date: core.NewDate(2025, 1, 1), Amount: core.Rupees(5), PaymentMethod: core.Cash})
	var ve *core.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, core.ErrEmptyOwner) {
		t.Fatalf("err = %v, want owner validation error", err)
	}
}

func TestSQLiteProfileUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.GetProfile(ctx, owner); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.UpsertProfile(ctx, core.Profile{OwnerID: owner, FirstName: "Ravi"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.UpsertProfile(ctx, core.Profile{OwnerID: owner, FirstName: "Ravi", LastName: "Kumar"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := repo.GetProfile(ctx, owner)
	if err != nil || p.LastName != "Kumar" {
		t.Fatalf("profile: %+v %v", p, err)
	}
}
