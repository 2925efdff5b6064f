package supertx

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error codes recognized in the Supertransaction API error envelope.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	CodeNetworkError        = "NETWORK_ERROR"
	CodeUserRejected        = "USER_REJECTED"
	CodeInvalidAPIKey       = "INVALID_API_KEY"
)

var (
	// ErrSlippageExceeded: the quoted swap moved beyond tolerance.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrNetwork: transient; the caller should retry with backoff.
	ErrNetwork = errors.New("network error from transfer executor")
	// ErrUserRejected: fatal for this attempt, no retry.
	ErrUserRejected = errors.New("signature rejected")
	// ErrInvalidCredential: configuration error; halt and alert an operator.
	ErrInvalidCredential = errors.New("invalid transfer executor credential")
	// ErrStatusTimeout: polling gave up before a terminal status; the
	// transfer must be flagged for manual review, not assumed failed.
	ErrStatusTimeout = errors.New("timed out waiting for transaction status")
)

// InsufficientBalanceError is an expected, recoverable outcome: the operator
// wallet cannot fund the transfer. It carries the full shortfall detail so
// the admin can remediate.
type InsufficientBalanceError struct {
	Token     string
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortage  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required=%s, available=%s, shortage=%s",
		e.Token, e.Required.String(), e.Available.String(), e.Shortage.String())
}

// APIError is an unrecognized error envelope from the service.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supertx API error %s: %s", e.Code, e.Message)
}

// errorEnvelope is the wire shape of all Supertransaction API errors.
type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (env *errorEnvelope) toError() error {
	switch env.Code {
	case CodeInsufficientBalance:
		required, _ := decimal.NewFromString(env.Details["required"])
		available, _ := decimal.NewFromString(env.Details["available"])
		shortage, _ := decimal.NewFromString(env.Details["shortage"])
		if shortage.IsZero() && required.GreaterThan(available) {
			shortage = required.Sub(available)
		}
		return &InsufficientBalanceError{
			Token:     env.Details["token"],
			Required:  required,
			Available: available,
			Shortage:  shortage,
		}
	case CodeSlippageExceeded:
		return fmt.Errorf("%w: %s", ErrSlippageExceeded, env.Message)
	case CodeNetworkError:
		return fmt.Errorf("%w: %s", ErrNetwork, env.Message)
	case CodeUserRejected:
		return fmt.Errorf("%w: %s", ErrUserRejected, env.Message)
	case CodeInvalidAPIKey:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, env.Message)
	default:
		return &APIError{Code: env.Code, Message: env.Message}
	}
}
