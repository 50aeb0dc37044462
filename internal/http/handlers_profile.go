package http

import (
	"net/http"

	"khata/internal/auth"
	"khata/internal/core"
)

type profileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarRef string `json:"avatar_url"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Ledger.GetProfile(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.deps.Ledger.UpdateProfile(r.Context(), auth.OwnerFromContext(r.Context()), core.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarRef: req.AvatarRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
