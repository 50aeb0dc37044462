package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"khata/internal/auth"
	"khata/internal/core"
	"khata/internal/report"
	"khata/internal/services"
)

type dashboardResponse struct {
	From core.Date `json:"from"`
	To   core.Date `json:"to"`
	core.Summary
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dr, err := parseRange(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	window, err := parseIntParam(q, "window", 0, 1, 366)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := parseDateParam(q, "ref")
	if err != nil {
		writeError(w, r, err)
		return
	}

	sum, err := s.deps.Dashboard.Summary(r.Context(), auth.OwnerFromContext(r.Context()), services.DashboardQuery{
		Range:      dr,
		WindowDays: window,
		Ref:        ref,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{From: dr.From, To: dr.To, Summary: sum})
}

type monthlyResponse struct {
	Year   int                `json:"year"`
	Months []core.MonthTotals `json:"months"`
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, err := parseIntParam(r.URL.Query(), "year", time.Now().Year(), 1, 9999)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.deps.Reports.Monthly(r.Context(), auth.OwnerFromContext(r.Context()), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monthlyResponse{Year: year, Months: rows})
}

type exportFunc func(ctx context.Context, ownerID string, r core.DateRange, w io.Writer) error

// export renders into memory first so a failure can still produce an error status.
func (s *Server) export(w http.ResponseWriter, r *http.Request, render exportFunc, contentType, ext string) {
	dr, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := render(r.Context(), auth.OwnerFromContext(r.Context()), dr, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportName(dr, ext)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func exportName(dr core.DateRange, ext string) string {
	name := "khata"
	if !dr.From.IsZero() {
		name += "-" + dr.From.String()
	}
	if !dr.To.IsZero() {
		name += "-to-" + dr.To.String()
	}
	return name + "." + ext
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, s.deps.Reports.ExportWorkbook, report.ContentTypeXLSX, "xlsx")
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, s.deps.Reports.ExportPDF, report.ContentTypePDF, "pdf")
}
