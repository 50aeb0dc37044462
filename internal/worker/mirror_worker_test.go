package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"khata/internal/amqp"
	"khata/internal/core"
	"khata/internal/memory"
	"khata/internal/ports"
	sheetsmem "khata/internal/sheets/memory"
)

const owner = "5e6f7a8b-1111-2222-3333-444455556666"

// flakyMirror fails every call until healed.
type flakyMirror struct {
	*sheetsmem.Mirror
	broken bool
}

func (f *flakyMirror) AppendSale(ctx context.Context, s core.Sale) (string, error) {
	if f.broken {
		return "", errors.New("quota exceeded")
	}
	return f.Mirror.AppendSale(ctx, s)
}

func TestHandleEventUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	mirror := sheetsmem.New()
	w := NewMirrorWorker(repo, mirror, 10)

	e, err := repo.CreateExpenseTransaction(ctx, core.ExpenseTransaction{
		OwnerID: owner, Date: core.NewDate(2025, 2, 1), PaymentMethod: core.Cash,
		Items: []core.ExpenseItem{
			{Name: "Tea", Unit: decimal.NewFromInt(1), PricePerUnit: core.Rupees(5)},
			{Name: "Cups", Unit: decimal.NewFromInt(10), PricePerUnit: core.Rupees(1)},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(ports.KindExpense, amqp.ActionUpsert, e.ID, owner)); err != nil {
		t.Fatalf("HandleEvent(upsert) error = %v", err)
	}
	if n := len(mirror.Rows(ports.KindExpense)); n != 2 {
		t.Fatalf("mirrored rows = %d, want 2", n)
	}
	if pending, _ := repo.ListUnmirrored(ctx, 10); len(pending) != 0 {
		t.Fatalf("record still pending: %+v", pending)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(ports.KindExpense, amqp.ActionDelete, e.ID, owner)); err != nil {
		t.Fatalf("HandleEvent(delete) error = %v", err)
	}
	if n := len(mirror.Rows(ports.KindExpense)); n != 0 {
		t.Fatalf("rows after delete = %d", n)
	}
}

func TestHandleEventSkipsVanishedRecord(t *testing.T) {
	w := NewMirrorWorker(memory.New(), sheetsmem.New(), 10)
	err := w.HandleEvent(context.Background(), amqp.NewTransactionEvent(ports.KindSale, amqp.ActionUpsert, 404, owner))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v, want nil for a deleted record", err)
	}
}

func TestHandleEventMirrorFailureRequeues(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	sale, _ := repo.CreateSale(ctx, core.Sale{OwnerID: owner, Date: core.NewDate(2025, 2, 1), Amount: core.Rupees(1), PaymentMethod: core.Cash})
	w := NewMirrorWorker(repo, &flakyMirror{Mirror: sheetsmem.New(), broken: true}, 10)

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(ports.KindSale, amqp.ActionUpsert, sale.ID, owner)); err == nil {
		t.Fatal("HandleEvent() should fail when the mirror is down")
	}
	if pending, _ := repo.ListUnmirrored(ctx, 10); len(pending) != 1 {
		t.Fatalf("failed record should stay pending, got %+v", pending)
	}
}

func TestProcessPendingRecoversLostEvents(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	flaky := &flakyMirror{Mirror: sheetsmem.New(), broken: true}
	w := NewMirrorWorker(repo, flaky, 10)

	for i := 0; i < 3; i++ {
		repo.CreateSale(ctx, core.Sale{OwnerID: owner, Date: core.NewDate(2025, 2, 1+i), Amount: core.Rupees(int64(i + 1)), PaymentMethod: core.Gpay})
	}

	n, err := w.ProcessPending(ctx)
	if err != nil || n != 0 {
		t.Fatalf("broken mirror sweep = %d, %v", n, err)
	}

	flaky.broken = false
	if err := w.StartupSweep(ctx); err != nil {
		t.Fatalf("StartupSweep() error = %v", err)
	}
	if rows := flaky.Rows(ports.KindSale); len(rows) != 3 {
		t.Fatalf("mirrored %d sales", len(rows))
	}
	n, _ = w.ProcessPending(ctx)
	if n != 0 {
		t.Fatalf("second sweep mirrored %d again", n)
	}
}

type countingPender struct{ calls atomic.Int32 }

func (c *countingPender) ProcessPending(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSweeperLifecycle(t *testing.T) {
	p := &countingPender{}
	s := NewSweeper(p, 5*time.Millisecond)
	ctx := context.Background()

	if s.IsRunning() {
		t.Fatal("sweeper running before Start")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatal("second Start() should fail")
	}

	deadline := time.Now().Add(time.Second)
	for p.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.calls.Load() < 2 {
		t.Fatalf("ProcessPending called %d times", p.calls.Load())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Fatal("sweeper still running after Stop")
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() on stopped sweeper error = %v", err)
	}
}
