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

// CreateWallet provisions a wallet row for a user/coin pair. Provisioning is
// idempotent: if the pair already has a wallet, the existing row is returned.
func (s *Service) CreateWallet(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, error) {
	if params.UserId == "" || params.CoinType == "" {
		return nil, fmt.Errorf("user id and coin type are required")
	}
	walletType := params.WalletType
	if walletType == "" {
		walletType = models.WalletHot
	}

	id := uuid.New().String()
	result, err := s.db.ExecContext(ctx, queryInsertWallet, id, params.UserId, params.CoinType, params.Address, walletType)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}

	wallet, err := s.GetWallet(ctx, params.UserId, params.CoinType)
	if err != nil {
		return nil, err
	}

	inserted, _ := result.RowsAffected()
	if inserted > 0 {
		zap.L().Info("Wallet provisioned",
			zap.String("wallet_id", wallet.Id),
			zap.String("user_id", wallet.UserId),
			zap.String("coin_type", wallet.CoinType),
			zap.String("wallet_type", wallet.WalletType))
		s.publish(store.TableWallets, store.OpInsert, walletFields(wallet))
	}
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, userId, coinType string) (*models.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, userId, coinType))
}

func (s *Service) getWalletById(ctx context.Context, walletId string) (*models.Wallet, error) {
	return s.scanWallet(s.db.QueryRowContext(ctx, queryGetWalletById, walletId))
}

func (s *Service) scanWallet(row *sql.Row) (*models.Wallet, error) {
	var wallet models.Wallet
	var balanceStr string
	err := row.Scan(&wallet.Id, &wallet.UserId, &wallet.CoinType, &wallet.Address,
		&balanceStr, &wallet.WalletType, &wallet.Status, &wallet.Version,
		&wallet.CreatedAt, &wallet.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	wallet.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return &wallet, nil
}

func (s *Service) GetUserWallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.Wallet
	for rows.Next() {
		var wallet models.Wallet
		var balanceStr string
		err := rows.Scan(&wallet.Id, &wallet.UserId, &wallet.CoinType, &wallet.Address,
			&balanceStr, &wallet.WalletType, &wallet.Status, &wallet.Version,
			&wallet.CreatedAt, &wallet.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallet.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

func walletFields(w *models.Wallet) map[string]string {
	return map[string]string{
		"id":        w.Id,
		"user_id":   w.UserId,
		"coin_type": w.CoinType,
		"balance":   w.Balance.String(),
		"status":    w.Status,
	}
}
