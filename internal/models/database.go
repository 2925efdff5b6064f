package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Verification request statuses.
const (
	VerificationPending       = "pending"
	VerificationCodeSent      = "code_sent"
	VerificationCodeSubmitted = "code_submitted"
	VerificationVerified      = "verified"
	VerificationRejected      = "rejected"
)

// Purchase request statuses.
const (
	PurchasePending  = "pending"
	PurchaseApproved = "approved"
	PurchaseRejected = "rejected"
)

// Transaction types.
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeTransfer   = "transfer"
	TxTypeFee        = "fee"
)

// Wallet types.
const (
	WalletHot  = "hot"
	WalletCold = "cold"
)

// User represents a user in the system
type User struct {
	Id           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"` // "user" or "admin"
	Verified     bool      `db:"verified"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Wallet represents a custodial balance for one user/coin pair
type Wallet struct {
	Id         string          `db:"id"`
	UserId     string          `db:"user_id"`
	CoinType   string          `db:"coin_type"`
	Address    string          `db:"address"`
	Balance    decimal.Decimal `db:"balance"`
	WalletType string          `db:"wallet_type"` // hot or cold
	Status     string          `db:"status"`
	Version    int64           `db:"version"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// Transaction represents immutable ledger history (cold data)
type Transaction struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	WalletId      string          `db:"wallet_id"`
	TxType        string          `db:"tx_type"`
	CoinType      string          `db:"coin_type"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	ReferenceId   string          `db:"reference_id"`
	TxHash        string          `db:"tx_hash"`
	CreatedAt     time.Time       `db:"created_at"`
}

// VerificationRequest is one account-verification attempt. Rejected requests
// are never revived; a resubmission creates a new record.
type VerificationRequest struct {
	Id                  string     `db:"id"`
	UserId              string     `db:"user_id"`
	BankName            string     `db:"bank_name"`
	AccountNumber       string     `db:"account_number"`
	AccountHolder       string     `db:"account_holder"`
	Status              string     `db:"status"`
	CodeSent            string     `db:"code_sent"`
	UserInputCode       string     `db:"user_input_code"`
	CodeSentAt          *time.Time `db:"code_sent_at"`
	SmartAccountAddress string     `db:"smart_account_address"`
	SmartAccountChainId int64      `db:"smart_account_chain_id"`
	RejectionReason     string     `db:"rejection_reason"`
	CreatedAt           time.Time  `db:"created_at"`
	VerifiedAt          *time.Time `db:"verified_at"`
}

// Terminal reports whether the request can no longer transition.
func (r *VerificationRequest) Terminal() bool {
	return r.Status == VerificationVerified || r.Status == VerificationRejected
}

// PurchaseRequest is a user's request to have coins credited to a wallet.
type PurchaseRequest struct {
	Id         string          `db:"id"`
	UserId     string          `db:"user_id"`
	WalletId   string          `db:"wallet_id"`
	CoinType   string          `db:"coin_type"`
	Amount     decimal.Decimal `db:"amount"`
	Status     string          `db:"status"`
	UserNote   string          `db:"user_note"`
	AdminNote  string          `db:"admin_note"`
	ApprovedBy string          `db:"approved_by"`
	CreatedAt  time.Time       `db:"created_at"`
	ApprovedAt *time.Time      `db:"approved_at"`
}

// Coin holds chain metadata for a supported coin.
type Coin struct {
	Symbol    string `db:"symbol" yaml:"symbol"`
	Name      string `db:"name" yaml:"name"`
	ChainId   int64  `db:"chain_id" yaml:"chain_id"`
	Decimals  int    `db:"decimals" yaml:"decimals"`
	IsDefault bool   `db:"is_default" yaml:"default"`
}

// Transfer intent statuses. An intent row is written before every call to the
// transfer executor so executed-but-unrecorded transfers can be replayed.
const (
	IntentCreated     = "created"
	IntentExecuted    = "executed"
	IntentFailed      = "failed"
	IntentNeedsReview = "needs_review"
)

// TransferIntent is the outbox record for one executor call.
type TransferIntent struct {
	Id          string          `db:"id"`
	RequestId   string          `db:"request_id"`
	UserId      string          `db:"user_id"`
	CoinType    string          `db:"coin_type"`
	Amount      decimal.Decimal `db:"amount"`
	FromAddress string          `db:"from_address"`
	ToAddress   string          `db:"to_address"`
	Status      string          `db:"status"`
	ExecutorRef string          `db:"executor_ref"`
	Recorded    bool            `db:"recorded"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Notification is a transient per-recipient event record. Only the most
// recent 100 per recipient are retained.
type Notification struct {
	Id        string            `json:"id"`
	UserId    string            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session is the client-side session payload returned on login.
type Session struct {
	Id       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}
