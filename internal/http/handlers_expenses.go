package http

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"khata/internal/auth"
	"khata/internal/core"
)

// itemRequest omits line totals; the server always computes them.
type itemRequest struct {
	Name         string          `json:"item_name"`
	Unit         decimal.Decimal `json:"unit"`
	PricePerUnit core.Money      `json:"price_per_unit"`
}

type expenseRequest struct {
	Date          core.Date          `json:"date"`
	PaymentMethod core.PaymentMethod `json:"payment_mode"`
	Note          string             `json:"note"`
	ReceiptRef    string             `json:"receipt_url"`
	Items         []itemRequest      `json:"items"`
}

func (req expenseRequest) toExpense() core.ExpenseTransaction {
	e := core.ExpenseTransaction{
		Date:          req.Date,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
		ReceiptRef:    req.ReceiptRef,
		Items:         make([]core.ExpenseItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		e.Items = append(e.Items, core.ExpenseItem{
			Name:         it.Name,
			Unit:         it.Unit,
			PricePerUnit: it.PricePerUnit,
		})
	}
	return e
}

type expenseList struct {
	Expenses []core.ExpenseTransaction `json:"expenses"`
	Total    core.Money                `json:"total"`
}

// handleListExpenses returns transactions; include_items=true also loads items.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dr, err := parseRange(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	method, err := parseMethod(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expenses, err := s.deps.Ledger.ListExpenses(r.Context(), auth.OwnerFromContext(r.Context()), dr, method, parseBoolParam(q, "include_items"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.ExpenseTransaction{}
	}
	writeJSON(w, http.StatusOK, expenseList{Expenses: expenses, Total: core.TotalAmount(expenses)})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Ledger.GetExpense(r.Context(), auth.OwnerFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Ledger.CreateExpense(r.Context(), auth.OwnerFromContext(r.Context()), req.toExpense())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/expenses/"+strconv.FormatInt(e.ID, 10))
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Ledger.UpdateExpense(r.Context(), auth.OwnerFromContext(r.Context()), id, req.toExpense())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.DeleteExpense(r.Context(), auth.OwnerFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
