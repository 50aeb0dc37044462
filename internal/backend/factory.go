package backend

import (
	"context"
	"fmt"
	"log/slog"

	"khata/internal/amqp"
	"khata/internal/memory"
	"khata/internal/ports"
	gsheet "khata/internal/sheets/google"
	sheetsmem "khata/internal/sheets/memory"
	"khata/internal/storage"
	"khata/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// dialAMQP is swapped in tests.
	dialAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:   logger,
		dialAMQP: amqp.NewClient,
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the repository and, when configured, the AMQP publisher.
// An unreachable broker is logged and the server runs without change events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.createRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res := &Result{Repository: repo, Cleanup: repo.Close}

	if cfg.AMQPURL != "" {
		client, err := f.dialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			res.Publisher = client
			res.Cleanup = func() error {
				aerr := client.Close()
				if rerr := repo.Close(); rerr != nil {
					return rerr
				}
				return aerr
			}
		}
	}

	return res, nil
}

func (f *DefaultFactory) createRepository(ctx context.Context, cfg Config) (ports.Repository, error) {
	switch cfg.Type {
	case SQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return repo, nil

	case Postgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate Postgres: %w", err)
		}
		repo, err := postgres.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return repo, nil

	case Memory:
		if cfg.SeedDir == "" {
			f.logger.Info("Initialized memory backend")
			return memory.New(), nil
		}
		f.logger.Info("Initialized memory backend", "seed_dir", cfg.SeedDir)
		return memory.NewFromFiles(cfg.SeedDir), nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

// CreateMirror returns the Google Sheets mirror, or an in-process one when no
// spreadsheet is configured.
func (f *DefaultFactory) CreateMirror(ctx context.Context, cfg Config) (ports.MirrorWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		f.logger.Warn("No spreadsheet configured, mirroring to memory")
		return sheetsmem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SalesSheet:      cfg.GoogleSalesSheet,
		ExpensesSheet:   cfg.GoogleExpensesSheet,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets mirror",
		"sales_sheet", cfg.GoogleSalesSheet,
		"expenses_sheet", cfg.GoogleExpensesSheet)
	return client, nil
}
