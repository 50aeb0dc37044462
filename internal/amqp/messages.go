package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"khata/internal/ports"
)

// Action says what happened to a record.
type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// TransactionEvent announces a committed write. It carries only identifiers; the
// consumer loads the current record from the repository.
type TransactionEvent struct {
	Kind      ports.RecordKind `json:"kind"`
	Action    Action           `json:"action"`
	ID        int64            `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewTransactionEvent(kind ports.RecordKind, action Action, id int64, ownerID string) *TransactionEvent {
	return &TransactionEvent{
		Kind:      kind,
		Action:    action,
		ID:        id,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and checks an event body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case ports.KindSale, ports.KindExpense:
	default:
		return nil, fmt.Errorf("unknown record kind %q", msg.Kind)
	}
	switch msg.Action {
	case ActionUpsert, ActionDelete:
	default:
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid record id %d", msg.ID)
	}
	return &msg, nil
}
