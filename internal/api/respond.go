package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"custody-workflow-go/internal/auth"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Hint    string            `json:"hint,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps the workflow error taxonomy onto HTTP statuses. Every
// error is surfaced with a human-readable message; recoverable conditions
// carry a remediation hint.
func writeError(w http.ResponseWriter, err error) {
	var validation *store.ValidationError
	var mismatch *store.MismatchError
	var insufficient *supertx.InsufficientBalanceError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error()})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "codes do not match",
			Hint:  "verify the depositor-name code with the user and try again",
		})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: insufficient.Error(),
			Hint:  "top up the operator wallet, then retry the approval",
			Details: map[string]string{
				"token":     insufficient.Token,
				"required":  insufficient.Required.String(),
				"available": insufficient.Available.String(),
				"shortage":  insufficient.Shortage.String(),
			},
		})
	case errors.Is(err, store.ErrMissingOperatorWallet):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{
			Error: err.Error(),
			Hint:  "create an operator wallet for this coin first",
		})
	case errors.Is(err, store.ErrNoWallet):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{
			Error: err.Error(),
			Hint:  "the user has no wallet for this coin; complete verification first",
		})
	case errors.Is(err, store.ErrUnknownCoin):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{
			Error: err.Error(),
			Hint:  "register the coin metadata before approving",
		})
	case errors.Is(err, store.ErrStaleState):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "the request has already been processed",
		})
	case errors.Is(err, store.ErrOpenVerification):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Hint:  "wait for the current request to finish before submitting another",
		})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, supertx.ErrNetwork):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: "transfer executor unreachable",
			Hint:  "retry the action shortly",
		})
	case errors.Is(err, supertx.ErrUserRejected):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, supertx.ErrInvalidCredential):
		zap.L().Error("Transfer executor credential rejected; halting approvals until fixed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "transfer executor is misconfigured",
			Hint:  "an operator must rotate the API credential before retrying",
		})
	default:
		zap.L().Error("Unhandled error in API", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
