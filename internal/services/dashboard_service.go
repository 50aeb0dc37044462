package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"khata/internal/cache"
	"khata/internal/core"
	"khata/internal/ports"
)

// DashboardQuery scopes a dashboard. Zero Ref means today; zero WindowDays means
// the service default.
type DashboardQuery struct {
	Range      core.DateRange
	WindowDays int
	Ref        core.Date
}

type DashboardService struct {
	repo          ports.Repository
	cache         cache.Cache[core.Summary]
	defaultWindow int
	now           func() time.Time
}

func NewDashboardService(repo ports.Repository, c cache.Cache[core.Summary], defaultWindow int) *DashboardService {
	return &DashboardService{
		repo:          repo,
		cache:         c,
		defaultWindow: defaultWindow,
		now:           time.Now,
	}
}

func (s *DashboardService) resolve(q DashboardQuery) DashboardQuery {
	if q.WindowDays == 0 {
		q.WindowDays = s.defaultWindow
	}
	if q.Ref.IsZero() {
		if !q.Range.To.IsZero() {
			q.Ref = q.Range.To
		} else {
			q.Ref = core.DateOf(s.now())
		}
	}
	return q
}

// Summary computes the dashboard figures for the owner's rows in q.Range. A
// failing repository read aborts the whole computation.
func (s *DashboardService) Summary(ctx context.Context, ownerID string, q DashboardQuery) (core.Summary, error) {
	if err := q.Range.Validate(); err != nil {
		return core.Summary{}, err
	}
	q = s.resolve(q)

	prefix := OwnerKeyPrefix(ownerID)
	key := fmt.Sprintf("%sdashboard|%s|%d|%s", prefix, q.Range, q.WindowDays, q.Ref)
	var gen uint64
	if s.cache != nil {
		if sum, ok := s.cache.Get(key); ok {
			slog.DebugContext(ctx, "Dashboard served from cache", "range", q.Range.String())
			return sum, nil
		}
		gen = s.cache.Generation(prefix)
	}

	sales, expenses, err := loadRange(ctx, s.repo, ownerID, q.Range)
	if err != nil {
		return core.Summary{}, repoErr("load dashboard", err)
	}

	sum := core.Summarize(sales, expenses, q.WindowDays, q.Ref)
	sum.Range = q.Range
	if s.cache != nil && !s.cache.SetIfGeneration(key, prefix, gen, sum) {
		slog.DebugContext(ctx, "Dashboard invalidated while computing, not cached", "range", q.Range.String())
	}

	slog.DebugContext(ctx, "Dashboard computed",
		"sales", len(sales),
		"expenses", len(expenses),
		"profit_paise", sum.Profit.Paise)
	return sum, nil
}

// loadRange fetches sales and expenses with items concurrently. Either failure
// cancels the other and is returned.
func loadRange(ctx context.Context, repo ports.Repository, ownerID string, r core.DateRange) ([]core.Sale, []core.ExpenseTransaction, error) {
	var (
		sales    []core.Sale
		expenses []core.ExpenseTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = repo.ListSales(gctx, ownerID, r)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = repo.ListExpenseTransactions(gctx, ownerID, r)
		if err != nil {
			return err
		}
		return attachItems(gctx, repo, ownerID, expenses)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sales, expenses, nil
}
