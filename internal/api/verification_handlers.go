package api

import (
	"errors"
	"net/http"
	"strconv"

	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/verification"

	"github.com/go-chi/chi/v5"
)

type submitVerificationRequest struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	AccountHolder string `json:"account_holder" validate:"required"`
}

type submitCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req submitVerificationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.verifications.Submit(r.Context(), claims.Subject,
		req.BankName, req.AccountNumber, req.AccountHolder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	limit, offset := paging(r)

	requests, err := s.store.ListVerificationRequests(r.Context(),
		r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	// Non-admin callers only see their own requests.
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

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	request, err := s.store.GetVerificationRequest(r.Context(), chi.URLParam(r, "id"))
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

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	request, err := s.verifications.SendCode(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req submitCodeRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	request, err := s.verifications.SubmitCode(r.Context(), claims.Subject,
		chi.URLParam(r, "id"), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleApproveVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	request, err := s.verifications.Approve(r.Context(), claims.Subject, chi.URLParam(r, "id"))

	// Post-approval gaps are reported alongside the verified request; the
	// status change itself is never rolled back.
	var gap *verification.ProvisionGapError
	if errors.As(err, &gap) {
		writeJSON(w, http.StatusOK, map[string]any{
			"request": request,
			"warning": gap.Error(),
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleRejectVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req rejectRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	request, err := s.verifications.Reject(r.Context(), claims.Subject,
		chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// paging parses limit/offset query parameters with sane defaults.
func paging(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
