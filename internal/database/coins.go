package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
)

func (s *Service) UpsertCoin(ctx context.Context, coin models.Coin) error {
	if coin.Symbol == "" {
		return fmt.Errorf("coin symbol cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, queryUpsertCoin,
		coin.Symbol, coin.Name, coin.ChainId, coin.Decimals, coin.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to upsert coin %s: %w", coin.Symbol, err)
	}
	return nil
}

func (s *Service) GetCoin(ctx context.Context, symbol string) (*models.Coin, error) {
	var coin models.Coin
	err := s.db.QueryRowContext(ctx, queryGetCoin, symbol).
		Scan(&coin.Symbol, &coin.Name, &coin.ChainId, &coin.Decimals, &coin.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownCoin, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coin: %w", err)
	}
	return &coin, nil
}

func (s *Service) GetDefaultCoins(ctx context.Context) ([]models.Coin, error) {
	rows, err := s.db.QueryContext(ctx, queryGetDefaultCoins)
	if err != nil {
		return nil, fmt.Errorf("failed to get default coins: %w", err)
	}
	defer rows.Close()

	var coins []models.Coin
	for rows.Next() {
		var coin models.Coin
		if err := rows.Scan(&coin.Symbol, &coin.Name, &coin.ChainId, &coin.Decimals, &coin.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan coin: %w", err)
		}
		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin rows: %w", err)
	}
	return coins, nil
}
