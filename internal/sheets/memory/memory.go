// Package memory is an in-process spreadsheet mirror for local runs and tests.
package memory

import (
	"context"
	"sync"

	"khata/internal/core"
	"khata/internal/ports"
	"khata/internal/sheets"
)

// Mirror keeps mirrored rows per tab in insertion order.
type Mirror struct {
	mu   sync.Mutex
	tabs map[ports.RecordKind][][]any
}

var _ ports.MirrorWriter = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{tabs: make(map[ports.RecordKind][][]any)}
}

func (m *Mirror) AppendSale(_ context.Context, s core.Sale) (string, error) {
	return m.replace(ports.KindSale, s.ID, [][]any{sheets.SaleRow(s)}), nil
}

func (m *Mirror) AppendExpense(_ context.Context, e core.ExpenseTransaction) (string, error) {
	return m.replace(ports.KindExpense, e.ID, sheets.ExpenseRows(e)), nil
}

func (m *Mirror) Remove(_ context.Context, kind ports.RecordKind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(kind, id)
	return nil
}

func (m *Mirror) replace(kind ports.RecordKind, id int64, rows [][]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(kind, id)
	m.tabs[kind] = append(m.tabs[kind], rows...)
	return sheets.RowRef(kind, id)
}

func (m *Mirror) removeLocked(kind ports.RecordKind, id int64) {
	rows := m.tabs[kind]
	for _, span := range sheets.Spans(sheets.MatchingRows(rows, sheets.RowRef(kind, id))) {
		rows = append(rows[:span.Start], rows[span.End:]...)
	}
	m.tabs[kind] = rows
}

// Rows returns a copy of the rows mirrored for kind.
func (m *Mirror) Rows(kind ports.RecordKind) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]any(nil), m.tabs[kind]...)
}
