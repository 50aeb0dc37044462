package http

import (
	"net/http"
	"strconv"

	"khata/internal/auth"
	"khata/internal/core"
)

type saleRequest struct {
	Date          core.Date          `json:"date"`
	Amount        core.Money         `json:"amount"`
	PaymentMethod core.PaymentMethod `json:"payment_type"`
	Note          string             `json:"note"`
	Category      string             `json:"category"`
}

func (req saleRequest) toSale() core.Sale {
	return core.Sale{
		Date:          req.Date,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
		Category:      req.Category,
	}
}

type saleList struct {
	Sales []core.Sale `json:"sales"`
	Total core.Money  `json:"total"`
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
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

	sales, err := s.deps.Ledger.ListSales(r.Context(), auth.OwnerFromContext(r.Context()), dr, method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sales == nil {
		sales = []core.Sale{}
	}
	writeJSON(w, http.StatusOK, saleList{Sales: sales, Total: core.TotalAmount(sales)})
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.deps.Ledger.GetSale(r.Context(), auth.OwnerFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.deps.Ledger.CreateSale(r.Context(), auth.OwnerFromContext(r.Context()), req.toSale())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sales/"+strconv.FormatInt(sale.ID, 10))
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req saleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.deps.Ledger.UpdateSale(r.Context(), auth.OwnerFromContext(r.Context()), id, req.toSale())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.DeleteSale(r.Context(), auth.OwnerFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
