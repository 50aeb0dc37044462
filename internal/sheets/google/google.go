package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"khata/internal/core"
	applog "khata/internal/log"
	"khata/internal/ports"
	"khata/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client mirrors ledger rows into two tabs of one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	salesSheet    string
	expensesSheet string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ ports.MirrorWriter = (*Client)(nil)

// Options configures the mirror. One of CredentialsJSON or CredentialsFile is required.
type Options struct {
	SpreadsheetID   string
	SalesSheet      string
	ExpensesSheet   string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.SalesSheet == "" {
		opts.SalesSheet = "Sales"
	}
	if opts.ExpensesSheet == "" {
		opts.ExpensesSheet = "Expenses"
	}

	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		salesSheet:    opts.SalesSheet,
		expensesSheet: opts.ExpensesSheet,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// newSheetsService authenticates with a service account, inline JSON first.
func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	var creds []byte
	switch {
	case strings.TrimSpace(credentialsJSON) != "":
		creds = []byte(credentialsJSON)
	case strings.TrimSpace(credentialsFile) != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", applog.FieldComponent, applog.ComponentSheets, "credentials_size", len(creds))
	return svc, nil
}

func (c *Client) sheetFor(kind ports.RecordKind) (string, error) {
	switch kind {
	case ports.KindSale:
		return c.salesSheet, nil
	case ports.KindExpense:
		return c.expensesSheet, nil
	}
	return "", fmt.Errorf("unsupported record kind: %s", kind)
}

// AppendSale writes the sale's row, replacing any earlier copy of it.
func (c *Client) AppendSale(ctx context.Context, s core.Sale) (string, error) {
	return c.replace(ctx, ports.KindSale, s.ID, [][]any{sheets.SaleRow(s)})
}

// AppendExpense writes one row per item, replacing any earlier copy of the transaction.
func (c *Client) AppendExpense(ctx context.Context, e core.ExpenseTransaction) (string, error) {
	return c.replace(ctx, ports.KindExpense, e.ID, sheets.ExpenseRows(e))
}

func (c *Client) replace(ctx context.Context, kind ports.RecordKind, id int64, rows [][]any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := c.Remove(ctx, kind, id); err != nil {
		return "", err
	}

	sheet, _ := c.sheetFor(kind)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:A", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := sheets.RowRef(kind, id)
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Mirrored record", applog.FieldKind, kind, applog.FieldRecordID, id, "rows", len(rows), "range", ref)
	return ref, nil
}

// Remove deletes every row whose reference cell names the record. Missing rows
// are not an error.
func (c *Client) Remove(ctx context.Context, kind ports.RecordKind, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet, err := c.sheetFor(kind)
	if err != nil {
		return err
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s refs: %w", sheet, err)
	}
	rows := sheets.MatchingRows(resp.Values, sheets.RowRef(kind, id))
	if len(rows) == 0 {
		return nil
	}

	sheetID, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}

	var reqs []*gsheet.Request
	for _, span := range sheets.Spans(rows) {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(span.Start),
					EndIndex:   int64(span.End),
				},
			},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete rows from %s: %w", sheet, err)
	}

	slog.DebugContext(ctx, "Removed mirrored rows", applog.FieldKind, kind, applog.FieldRecordID, id, "rows", len(rows))
	return nil
}

// sheetID resolves a tab title to its numeric id, caching the answer.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", title)
	}
	return id, nil
}
