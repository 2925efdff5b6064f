package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-workflow-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrStaleState             = errors.New("stale state: request already transitioned")
	ErrNotFound               = errors.New("record not found")
	ErrNoWallet               = errors.New("no wallet for user and coin")
	ErrUnknownCoin            = errors.New("unknown coin")
	ErrMissingOperatorWallet  = errors.New("no operator wallet for coin")
	ErrOpenVerification       = errors.New("a verification request is already in progress")
)

// ValidationError reports bad input shape. It is raised before any store
// mutation and surfaced inline to the submitting user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MismatchError reports that the user-submitted verification code does not
// match the code that was sent.
type MismatchError struct {
	RequestId string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("codes do not match for request %s", e.RequestId)
}

// CreateUserParams contains the parameters for creating a user.
type CreateUserParams struct {
	Id           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// CreateWalletParams contains the parameters for provisioning a wallet.
type CreateWalletParams struct {
	UserId     string
	CoinType   string
	Address    string
	WalletType string
}

// LedgerEntryParams captures one balance mutation. Amount is always positive;
// the direction comes from the credit/debit method called.
type LedgerEntryParams struct {
	WalletId    string
	TxType      string // deposit, withdrawal, transfer, fee
	Amount      decimal.Decimal
	ReferenceId string // originating request id, used for duplicate detection
	TxHash      string // external chain reference, may be empty
}

// CreateVerificationParams contains the validated inputs of a submission.
type CreateVerificationParams struct {
	UserId        string
	BankName      string
	AccountNumber string
	AccountHolder string
}

// CreatePurchaseParams contains the validated inputs of a purchase request.
type CreatePurchaseParams struct {
	UserId   string
	WalletId string
	CoinType string
	Amount   decimal.Decimal
	UserNote string
}

// CreateIntentParams contains the outbox record written before an executor call.
type CreateIntentParams struct {
	RequestId   string
	UserId      string
	CoinType    string
	Amount      decimal.Decimal
	FromAddress string
	ToAddress   string
}

// LedgerStore defines the contract that every backend must satisfy.
// Status transitions are compare-and-swap: the mutation only succeeds if the
// row still holds the expected source status, otherwise ErrStaleState.
type LedgerStore interface {
	// --- Users ---
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetUserVerified(ctx context.Context, userId string, verified bool) error

	// --- Coins ---
	UpsertCoin(ctx context.Context, coin models.Coin) error
	GetCoin(ctx context.Context, symbol string) (*models.Coin, error)
	GetDefaultCoins(ctx context.Context) ([]models.Coin, error)

	// --- Wallets ---
	CreateWallet(ctx context.Context, params CreateWalletParams) (*models.Wallet, error)
	GetWallet(ctx context.Context, userId, coinType string) (*models.Wallet, error)
	GetUserWallets(ctx context.Context, userId string) ([]models.Wallet, error)

	// --- Ledger ---
	CreditWallet(ctx context.Context, params LedgerEntryParams) (*models.Transaction, error)
	DebitWallet(ctx context.Context, params LedgerEntryParams) (*models.Transaction, error)
	GetTransactionHistory(ctx context.Context, userId, coinType string, limit, offset int) ([]models.Transaction, error)
	GetTransactionByReference(ctx context.Context, referenceId string) (*models.Transaction, error)
	ReconcileWalletBalance(ctx context.Context, walletId string) error

	// --- Verification requests ---
	CreateVerificationRequest(ctx context.Context, params CreateVerificationParams) (*models.VerificationRequest, error)
	GetVerificationRequest(ctx context.Context, id string) (*models.VerificationRequest, error)
	ListVerificationRequests(ctx context.Context, status string, limit, offset int) ([]models.VerificationRequest, error)
	MarkVerificationCodeSent(ctx context.Context, id, code string, at time.Time) (*models.VerificationRequest, error)
	RecordVerificationCodeInput(ctx context.Context, id, input string) (*models.VerificationRequest, error)
	MarkVerificationVerified(ctx context.Context, id, expectedStatus, address string, chainId int64, at time.Time) (*models.VerificationRequest, error)
	MarkVerificationRejected(ctx context.Context, id, expectedStatus, reason string) (*models.VerificationRequest, error)

	// --- Purchase requests ---
	CreatePurchaseRequest(ctx context.Context, params CreatePurchaseParams) (*models.PurchaseRequest, error)
	GetPurchaseRequest(ctx context.Context, id string) (*models.PurchaseRequest, error)
	ListPurchaseRequests(ctx context.Context, status string, limit, offset int) ([]models.PurchaseRequest, error)
	MarkPurchaseApproved(ctx context.Context, id, adminId, note string, at time.Time) (*models.PurchaseRequest, error)
	MarkPurchaseRejected(ctx context.Context, id, adminId, note string, at time.Time) (*models.PurchaseRequest, error)

	// --- Transfer intents (outbox) ---
	CreateTransferIntent(ctx context.Context, params CreateIntentParams) (*models.TransferIntent, error)
	SetIntentStatus(ctx context.Context, id, status, executorRef string) error
	MarkIntentRecorded(ctx context.Context, id string) error
	GetUnrecordedIntents(ctx context.Context) ([]models.TransferIntent, error)

	// --- Idempotency keys ---
	GetIdempotentResponse(ctx context.Context, key string) (int, []byte, error)
	SaveIdempotentResponse(ctx context.Context, key string, status int, body []byte) error

	// --- Change feed ---
	Subscribe(table string, ops []Op, filter map[string]string) *Subscription

	// --- Lifecycle ---
	Close()
}
