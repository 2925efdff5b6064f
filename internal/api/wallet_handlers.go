package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	userId := claims.Subject
	if claims.Role == "admin" {
		if v := r.URL.Query().Get("user_id"); v != "" {
			userId = v
		}
	}

	wallets, err := s.store.GetUserWallets(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	limit, offset := paging(r)

	userId := claims.Subject
	if claims.Role == "admin" {
		if v := r.URL.Query().Get("user_id"); v != "" {
			userId = v
		}
	}

	transactions, err := s.store.GetTransactionHistory(r.Context(), userId,
		chi.URLParam(r, "coinType"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}
