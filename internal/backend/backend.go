// Package backend builds the storage, messaging and mirror adapters selected
// by configuration.
package backend

import (
	"context"

	"khata/internal/ports"
	"khata/internal/services"
)

// Type names a repository implementation.
type Type string

const (
	Memory   Type = "memory"
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case Memory, SQLite, Postgres:
		return true
	default:
		return false
	}
}

// CleanupFunc releases a resource created by the factory.
type CleanupFunc func() error

// Result bundles what the API server and worker need from a backend.
type Result struct {
	Repository ports.Repository
	// Publisher is nil when AMQP is not configured.
	Publisher services.EventPublisher
	Cleanup   CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	SQLiteDBPath string
	DatabaseURL  string
	// SeedDir may hold a seed.jsonl file for the memory backend.
	SeedDir string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSalesSheet         string
	GoogleExpensesSheet      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*Result, error)
	CreateMirror(ctx context.Context, cfg Config) (ports.MirrorWriter, error)
}
