package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferParams describes one sponsored operator->user transfer.
type TransferParams struct {
	ChainId     int64
	CoinType    string
	Amount      decimal.Decimal
	FromAddress string
	ToAddress   string
}

// Executor submits a transfer to the external execution service and returns
// its transaction reference. Satisfied by the supertx-backed executor.
type Executor interface {
	Transfer(ctx context.Context, params TransferParams) (txHash string, err error)
}

// Service advances purchase requests through pending -> approved/rejected.
// The on-chain transfer is attempted before any ledger mutation so a failed
// transfer never produces a phantom balance increase; an intent row written
// before the executor call lets the reconciler replay the ledger write if
// the process dies in between.
type Service struct {
	store      store.LedgerStore
	executor   Executor
	operatorId string
}

func NewService(ledger store.LedgerStore, executor Executor, operatorId string) *Service {
	return &Service{store: ledger, executor: executor, operatorId: operatorId}
}

// Create registers a purchase request. The user must already hold a wallet
// for the requested coin.
func (s *Service) Create(ctx context.Context, userId, coinType string, amount decimal.Decimal, note string) (*models.PurchaseRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	wallet, err := s.store.GetWallet(ctx, userId, coinType)
	if err != nil {
		return nil, err
	}

	return s.store.CreatePurchaseRequest(ctx, store.CreatePurchaseParams{
		UserId:   userId,
		WalletId: wallet.Id,
		CoinType: coinType,
		Amount:   amount,
		UserNote: note,
	})
}

// Approve executes the full approval flow. Every resolution step is
// independently fallible and leaves the request pending; only after the
// executor returns a transaction reference does the status flip to approved,
// followed by the wallet credit and the ledger row.
func (s *Service) Approve(ctx context.Context, adminId, requestId, note string) (*models.PurchaseRequest, error) {
	if strings.TrimSpace(note) == "" {
		return nil, &store.ValidationError{Field: "admin_note", Reason: "cannot be blank"}
	}

	request, err := s.store.GetPurchaseRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if request.Status != models.PurchasePending {
		return nil, store.ErrStaleState
	}

	// Step 1: operator wallet for the coin funds the transfer.
	operatorWallet, err := s.store.GetWallet(ctx, s.operatorId, request.CoinType)
	if err != nil {
		if errors.Is(err, store.ErrNoWallet) {
			return nil, fmt.Errorf("%w: %s (create an operator wallet for this coin first)",
				store.ErrMissingOperatorWallet, request.CoinType)
		}
		return nil, err
	}

	// Step 2: destination user wallet.
	userWallet, err := s.store.GetWallet(ctx, request.UserId, request.CoinType)
	if err != nil {
		return nil, err
	}

	// Step 3: coin metadata.
	coin, err := s.store.GetCoin(ctx, request.CoinType)
	if err != nil {
		return nil, err
	}

	// Step 4: write the intent, then invoke the executor.
	intent, err := s.store.CreateTransferIntent(ctx, store.CreateIntentParams{
		RequestId:   request.Id,
		UserId:      request.UserId,
		CoinType:    request.CoinType,
		Amount:      request.Amount,
		FromAddress: operatorWallet.Address,
		ToAddress:   userWallet.Address,
	})
	if err != nil {
		return nil, err
	}

	txHash, err := s.executor.Transfer(ctx, TransferParams{
		ChainId:     coin.ChainId,
		CoinType:    request.CoinType,
		Amount:      request.Amount,
		FromAddress: operatorWallet.Address,
		ToAddress:   userWallet.Address,
	})
	if err != nil {
		if ierr := s.store.SetIntentStatus(ctx, intent.Id, models.IntentFailed, ""); ierr != nil {
			zap.L().Error("Failed to mark intent failed", zap.String("intent_id", intent.Id), zap.Error(ierr))
		}

		var insufficient *supertx.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			zap.L().Warn("Purchase approval aborted: operator balance short",
				zap.String("request_id", requestId),
				zap.String("coin_type", request.CoinType),
				zap.String("required", insufficient.Required.String()),
				zap.String("available", insufficient.Available.String()),
				zap.String("shortage", insufficient.Shortage.String()))
			return nil, err
		}

		zap.L().Error("Transfer execution failed",
			zap.String("request_id", requestId),
			zap.Error(err))
		return nil, err
	}

	if err := s.store.SetIntentStatus(ctx, intent.Id, models.IntentExecuted, txHash); err != nil {
		zap.L().Error("Failed to record executor reference on intent",
			zap.String("intent_id", intent.Id),
			zap.String("tx_hash", txHash),
			zap.Error(err))
	}

	// Step 5: the transfer is on chain; flip status, credit, record.
	approved, err := s.store.MarkPurchaseApproved(ctx, requestId, adminId, strings.TrimSpace(note), time.Now().UTC())
	if err != nil {
		// A concurrent approver won the CAS after our transfer executed.
		// The intent stays unrecorded for the reconciler to sort out.
		if ierr := s.store.SetIntentStatus(ctx, intent.Id, models.IntentNeedsReview, txHash); ierr != nil {
			zap.L().Error("Failed to flag intent for review", zap.String("intent_id", intent.Id), zap.Error(ierr))
		}
		return nil, err
	}

	if err := s.recordApproval(ctx, approved, userWallet.Id, txHash); err != nil {
		zap.L().Error("Ledger write missing after executed transfer; reconciler will replay",
			zap.String("request_id", requestId),
			zap.String("intent_id", intent.Id),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return approved, err
	}

	if err := s.store.MarkIntentRecorded(ctx, intent.Id); err != nil {
		zap.L().Error("Failed to mark intent recorded", zap.String("intent_id", intent.Id), zap.Error(err))
	}

	zap.L().Info("Purchase request approved",
		zap.String("request_id", requestId),
		zap.String("admin_id", adminId),
		zap.String("coin_type", request.CoinType),
		zap.String("amount", request.Amount.String()),
		zap.String("tx_hash", txHash))
	return approved, nil
}

// Reject requires a non-empty admin note. No funds move.
func (s *Service) Reject(ctx context.Context, adminId, requestId, note string) (*models.PurchaseRequest, error) {
	if strings.TrimSpace(note) == "" {
		return nil, &store.ValidationError{Field: "admin_note", Reason: "cannot be blank"}
	}

	rejected, err := s.store.MarkPurchaseRejected(ctx, requestId, adminId, strings.TrimSpace(note), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	zap.L().Info("Purchase request rejected",
		zap.String("request_id", requestId),
		zap.String("admin_id", adminId))
	return rejected, nil
}

func (s *Service) recordApproval(ctx context.Context, request *models.PurchaseRequest, walletId, txHash string) error {
	_, err := s.store.CreditWallet(ctx, store.LedgerEntryParams{
		WalletId:    walletId,
		TxType:      models.TxTypeDeposit,
		Amount:      request.Amount,
		ReferenceId: request.Id,
		TxHash:      txHash,
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		// Replay after a partial failure; the ledger row already exists.
		return nil
	}
	return err
}
