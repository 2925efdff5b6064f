package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditWallet increases a wallet balance and appends the ledger row.
func (s *Service) CreditWallet(ctx context.Context, params store.LedgerEntryParams) (*models.Transaction, error) {
	return s.applyLedgerEntry(ctx, params, false)
}

// DebitWallet decreases a wallet balance and appends the ledger row.
// The balance is not allowed to go negative.
func (s *Service) DebitWallet(ctx context.Context, params store.LedgerEntryParams) (*models.Transaction, error) {
	return s.applyLedgerEntry(ctx, params, true)
}

// applyLedgerEntry atomically updates the wallet balance and records the
// transaction. Duplicate reference ids are rejected so replays are safe.
func (s *Service) applyLedgerEntry(ctx context.Context, params store.LedgerEntryParams, debit bool) (*models.Transaction, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	zap.L().Info("Processing ledger entry",
		zap.String("wallet_id", params.WalletId),
		zap.String("tx_type", params.TxType),
		zap.String("amount", params.Amount.String()),
		zap.String("reference_id", params.ReferenceId),
		zap.Bool("debit", debit))

	// Check for duplicate reference id
	if params.ReferenceId != "" {
		var existingTxId string
		err := s.db.QueryRowContext(ctx, queryCheckDuplicateReference, params.ReferenceId, params.TxType).Scan(&existingTxId)
		if err == nil {
			zap.L().Warn("Duplicate ledger reference detected, skipping",
				zap.String("reference_id", params.ReferenceId),
				zap.String("existing_tx_id", existingTxId))
			return nil, fmt.Errorf("%w: reference_id %s already recorded", store.ErrDuplicateTransaction, params.ReferenceId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check for duplicate reference: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wallet models.Wallet
	var balanceStr string
	err = tx.QueryRowContext(ctx, queryGetWalletById, params.WalletId).
		Scan(&wallet.Id, &wallet.UserId, &wallet.CoinType, &wallet.Address,
			&balanceStr, &wallet.WalletType, &wallet.Status, &wallet.Version,
			&wallet.CreatedAt, &wallet.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	balanceBefore, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}

	var balanceAfter decimal.Decimal
	if debit {
		balanceAfter = balanceBefore.Sub(params.Amount)
		if balanceAfter.IsNegative() {
			return nil, fmt.Errorf("insufficient wallet balance: current=%s, requested=%s",
				balanceBefore.String(), params.Amount.String())
		}
	} else {
		balanceAfter = balanceBefore.Add(params.Amount)
	}

	transaction := &models.Transaction{
		Id:            uuid.New().String(),
		UserId:        wallet.UserId,
		WalletId:      wallet.Id,
		TxType:        params.TxType,
		CoinType:      wallet.CoinType,
		Amount:        params.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		ReferenceId:   params.ReferenceId,
		TxHash:        params.TxHash,
		CreatedAt:     now(),
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.UserId, transaction.WalletId, transaction.TxType,
		transaction.CoinType, transaction.Amount.String(), balanceBefore.String(),
		balanceAfter.String(), transaction.ReferenceId, transaction.TxHash, transaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Update wallet balance with optimistic locking
	result, err := tx.ExecContext(ctx, queryUpdateWalletBalance, balanceAfter.String(), wallet.Id, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Ledger entry processed successfully",
		zap.String("transaction_id", transaction.Id),
		zap.String("wallet_id", wallet.Id),
		zap.String("coin_type", wallet.CoinType),
		zap.String("old_balance", balanceBefore.String()),
		zap.String("new_balance", balanceAfter.String()))

	s.publish(store.TableTransactions, store.OpInsert, map[string]string{
		"id":           transaction.Id,
		"user_id":      transaction.UserId,
		"wallet_id":    transaction.WalletId,
		"tx_type":      transaction.TxType,
		"coin_type":    transaction.CoinType,
		"amount":       transaction.Amount.String(),
		"reference_id": transaction.ReferenceId,
	})
	s.publish(store.TableWallets, store.OpUpdate, map[string]string{
		"id":        wallet.Id,
		"user_id":   wallet.UserId,
		"coin_type": wallet.CoinType,
		"balance":   balanceAfter.String(),
	})

	return transaction, nil
}

// GetTransactionHistory returns paginated transaction history for a user.
// An empty coinType matches all coins.
func (s *Service) GetTransactionHistory(ctx context.Context, userId, coinType string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, coinType, coinType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

func (s *Service) GetTransactionByReference(ctx context.Context, referenceId string) (*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransactionByReference, referenceId)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, store.ErrNotFound
	}
	return scanTransaction(rows)
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var tx models.Transaction
	var amountStr, balanceBeforeStr, balanceAfterStr string
	err := rows.Scan(&tx.Id, &tx.UserId, &tx.WalletId, &tx.TxType, &tx.CoinType,
		&amountStr, &balanceBeforeStr, &balanceAfterStr,
		&tx.ReferenceId, &tx.TxHash, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	tx.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", balanceBeforeStr, err)
	}
	tx.BalanceAfter, err = decimal.NewFromString(balanceAfterStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", balanceAfterStr, err)
	}
	return &tx, nil
}

// ReconcileWalletBalance verifies that the wallet balance matches the signed
// sum of its ledger rows.
func (s *Service) ReconcileWalletBalance(ctx context.Context, walletId string) error {
	wallet, err := s.getWalletById(ctx, walletId)
	if err != nil {
		return err
	}

	var calculatedStr string
	if err := s.db.QueryRowContext(ctx, queryReconcileWalletBalance, walletId).Scan(&calculatedStr); err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}
	calculated, err := decimal.NewFromString(calculatedStr)
	if err != nil {
		return fmt.Errorf("failed to parse calculated balance '%s': %w", calculatedStr, err)
	}

	if !wallet.Balance.Equal(calculated) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("wallet_id", walletId),
			zap.String("current_balance", wallet.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", wallet.Balance.Sub(calculated).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", wallet.Balance.String(), calculated.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("wallet_id", walletId),
		zap.String("balance", wallet.Balance.String()))
	return nil
}
