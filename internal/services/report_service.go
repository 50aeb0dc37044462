package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"khata/internal/cache"
	"khata/internal/core"
	"khata/internal/ports"
	"khata/internal/report"
)

// ReportService builds the yearly breakdown and the downloadable exports.
type ReportService struct {
	repo    ports.Repository
	monthly cache.Cache[[]core.MonthTotals]
	now     func() time.Time
}

func NewReportService(repo ports.Repository, monthly cache.Cache[[]core.MonthTotals]) *ReportService {
	return &ReportService{repo: repo, monthly: monthly, now: time.Now}
}

func yearRange(year int) core.DateRange {
	return core.DateRange{From: core.NewDate(year, 1, 1), To: core.NewDate(year, 12, 31)}
}

// Monthly returns twelve month rows for year; zero year means the current one.
func (s *ReportService) Monthly(ctx context.Context, ownerID string, year int) ([]core.MonthTotals, error) {
	if year == 0 {
		year = s.now().Year()
	}
	if year < 1 || year > 9999 {
		return nil, &core.ValidationError{Field: "year", Err: core.ErrInvalidDate}
	}

	prefix := OwnerKeyPrefix(ownerID)
	key := fmt.Sprintf("%smonthly|%d", prefix, year)
	var gen uint64
	if s.monthly != nil {
		if rows, ok := s.monthly.Get(key); ok {
			return rows, nil
		}
		gen = s.monthly.Generation(prefix)
	}

	sales, expenses, err := loadRange(ctx, s.repo, ownerID, yearRange(year))
	if err != nil {
		return nil, repoErr("load monthly report", err)
	}
	rows := core.MonthlyBreakdown(sales, expenses, year)
	if s.monthly != nil {
		s.monthly.SetIfGeneration(key, prefix, gen, rows)
	}
	return rows, nil
}

func (s *ReportService) input(ctx context.Context, ownerID string, r core.DateRange) (report.Input, error) {
	if err := r.Validate(); err != nil {
		return report.Input{}, err
	}
	sales, expenses, err := loadRange(ctx, s.repo, ownerID, r)
	if err != nil {
		return report.Input{}, repoErr("load report", err)
	}

	title := "Ledger summary"
	if p, err := s.repo.GetProfile(ctx, ownerID); err == nil {
		if name := p.DisplayName(); name != "" {
			title = name
		}
	}

	ref := r.To
	if ref.IsZero() {
		ref = core.DateOf(s.now())
	}

	sum := core.Summarize(sales, expenses, 0, ref)
	sum.Range = r
	return report.Input{
		Title:       title,
		Range:       r,
		GeneratedAt: s.now(),
		Summary:     sum,
		Monthly:     core.MonthlySeries(sales, expenses, r, ref.Year()),
		Sales:       sales,
		Expenses:    expenses,
	}, nil
}

// ExportWorkbook writes the XLSX export for r to w.
func (s *ReportService) ExportWorkbook(ctx context.Context, ownerID string, r core.DateRange, w io.Writer) error {
	in, err := s.input(ctx, ownerID, r)
	if err != nil {
		return err
	}
	return report.WriteWorkbook(w, in)
}

// ExportPDF writes the one-page PDF summary for r to w.
func (s *ReportService) ExportPDF(ctx context.Context, ownerID string, r core.DateRange, w io.Writer) error {
	in, err := s.input(ctx, ownerID, r)
	if err != nil {
		return err
	}
	return report.WritePDF(w, in)
}
