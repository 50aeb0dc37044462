package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"khata/internal/amqp"
	applog "khata/internal/log"
	"khata/internal/ports"
)

// MirrorWorker copies committed ledger rows to the spreadsheet mirror.
type MirrorWorker struct {
	repo      ports.Repository
	mirror    ports.MirrorWriter
	batchSize int
}

func NewMirrorWorker(repo ports.Repository, mirror ports.MirrorWriter, batchSize int) *MirrorWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &MirrorWorker{repo: repo, mirror: mirror, batchSize: batchSize}
}

// HandleEvent applies one change event. Returning an error requeues the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing change event",
		applog.FieldKind, ev.Kind,
		"action", ev.Action,
		applog.FieldRecordID, ev.ID)

	if ev.Action == amqp.ActionDelete {
		if err := w.mirror.Remove(ctx, ev.Kind, ev.ID); err != nil {
			return fmt.Errorf("remove mirrored %s %d: %w", ev.Kind, ev.ID, err)
		}
		return nil
	}

	err := w.mirrorRecord(ctx, ev.Kind, ev.ID, ev.OwnerID)
	if errors.Is(err, ports.ErrNotFound) {
		// Deleted after the event was sent; the delete event cleans up.
		slog.WarnContext(ctx, "Record gone before mirroring, skipping", applog.FieldKind, ev.Kind, applog.FieldRecordID, ev.ID)
		return nil
	}
	return err
}

func (w *MirrorWorker) mirrorRecord(ctx context.Context, kind ports.RecordKind, id int64, ownerID string) error {
	var (
		ref string
		err error
	)
	switch kind {
	case ports.KindSale:
		sale, gerr := w.repo.GetSale(ctx, ownerID, id)
		if gerr != nil {
			return fmt.Errorf("get sale: %w", gerr)
		}
		ref, err = w.mirror.AppendSale(ctx, sale)
	case ports.KindExpense:
		e, gerr := w.repo.GetExpenseTransaction(ctx, ownerID, id)
		if gerr != nil {
			return fmt.Errorf("get expense: %w", gerr)
		}
		ref, err = w.mirror.AppendExpense(ctx, e)
	default:
		return fmt.Errorf("unsupported record kind: %s", kind)
	}
	if err != nil {
		return fmt.Errorf("mirror %s %d: %w", kind, id, err)
	}

	if err := w.repo.MarkMirrored(ctx, kind, id); err != nil {
		// The row is in the sheet; the next sweep rewrites it in place.
		slog.ErrorContext(ctx, "Failed to mark as mirrored", applog.FieldKind, kind, applog.FieldRecordID, id, applog.FieldError, err)
	}

	slog.InfoContext(ctx, "Record mirrored", applog.FieldKind, kind, applog.FieldRecordID, id, applog.FieldSheetsRef, ref)
	return nil
}

// ProcessPending mirrors up to one batch of rows still unmirrored, covering
// lost messages. It returns how many rows were mirrored.
func (w *MirrorWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.sweep(ctx, w.batchSize)
}

// StartupSweep runs a larger catch-up pass when the worker starts.
func (w *MirrorWorker) StartupSweep(ctx context.Context) error {
	n, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No unmirrored records found on startup")
	}
	return nil
}

func (w *MirrorWorker) sweep(ctx context.Context, limit int) (int, error) {
	pending, err := w.repo.ListUnmirrored(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unmirrored: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing unmirrored records", "count", len(pending))

	done, failed := 0, 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := w.mirrorRecord(ctx, p.Kind, p.ID, p.OwnerID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror record", applog.FieldKind, p.Kind, applog.FieldRecordID, p.ID, applog.FieldError, err)
			failed++
			continue
		}
		done++
	}

	slog.InfoContext(ctx, "Mirror sweep completed",
		"total", len(pending),
		"mirrored", done,
		"errors", failed)
	return done, nil
}
