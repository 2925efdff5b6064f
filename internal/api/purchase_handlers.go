package api

import (
	"net/http"

	"custody-workflow-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createPurchaseRequest struct {
	CoinType string `json:"coin_type" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Note     string `json:"note"`
}

type approvePurchaseRequest struct {
	Note string `json:"note" validate:"required"`
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req createPurchaseRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, &store.ValidationError{Field: "amount", Reason: "must be a decimal number"})
		return
	}

	created, err := s.purchases.Create(r.Context(), claims.Subject, req.CoinType, amount, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	limit, offset := paging(r)

	requests, err := s.store.ListPurchaseRequests(r.Context(),
		r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	if claims.Role != "admin" {
		own := requests[:0]
		for _, req := range requests {
			if req.UserId == claims.Subject {
				own = append(own, req)
			}
		}
		requests = own
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	request, err := s.store.GetPurchaseRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if claims.Role != "admin" && request.UserId != claims.Subject {
		writeError(w, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleApprovePurchase(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req approvePurchaseRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	request, err := s.purchases.Approve(r.Context(), claims.Subject,
		chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleRejectPurchase(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req approvePurchaseRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	request, err := s.purchases.Reject(r.Context(), claims.Subject,
		chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}
