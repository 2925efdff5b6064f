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

// CreateTransferIntent writes the outbox row for an executor call.
func (s *Service) CreateTransferIntent(ctx context.Context, params store.CreateIntentParams) (*models.TransferIntent, error) {
	intent := &models.TransferIntent{
		Id:          uuid.New().String(),
		RequestId:   params.RequestId,
		UserId:      params.UserId,
		CoinType:    params.CoinType,
		Amount:      params.Amount,
		FromAddress: params.FromAddress,
		ToAddress:   params.ToAddress,
		Status:      models.IntentCreated,
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}

	_, err := s.db.ExecContext(ctx, queryInsertIntent,
		intent.Id, intent.RequestId, intent.UserId, intent.CoinType,
		intent.Amount.String(), intent.FromAddress, intent.ToAddress,
		intent.CreatedAt, intent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transfer intent: %w", err)
	}

	zap.L().Info("Transfer intent created",
		zap.String("intent_id", intent.Id),
		zap.String("request_id", intent.RequestId),
		zap.String("coin_type", intent.CoinType),
		zap.String("amount", intent.Amount.String()))
	return intent, nil
}

// SetIntentStatus updates the executor-side status of an intent. A non-empty
// executorRef also records the transaction reference.
func (s *Service) SetIntentStatus(ctx context.Context, id, status, executorRef string) error {
	result, err := s.db.ExecContext(ctx, querySetIntentStatus, status, executorRef, executorRef, id)
	if err != nil {
		return fmt.Errorf("failed to update transfer intent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkIntentRecorded flags that the ledger write for this intent exists.
func (s *Service) MarkIntentRecorded(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, queryMarkIntentRecorded, id)
	if err != nil {
		return fmt.Errorf("failed to mark intent recorded: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetUnrecordedIntents returns intents whose ledger write is still missing,
// oldest first. Failed intents are excluded; they never produce ledger rows.
func (s *Service) GetUnrecordedIntents(ctx context.Context) ([]models.TransferIntent, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUnrecordedIntents)
	if err != nil {
		return nil, fmt.Errorf("failed to get unrecorded intents: %w", err)
	}
	defer rows.Close()

	var intents []models.TransferIntent
	for rows.Next() {
		var intent models.TransferIntent
		var amountStr string
		err := rows.Scan(&intent.Id, &intent.RequestId, &intent.UserId, &intent.CoinType,
			&amountStr, &intent.FromAddress, &intent.ToAddress,
			&intent.Status, &intent.ExecutorRef, &intent.Recorded,
			&intent.CreatedAt, &intent.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer intent: %w", err)
		}
		intent.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent rows: %w", err)
	}
	return intents, nil
}

// GetIdempotentResponse returns a previously stored response for the key, or
// store.ErrNotFound when the key has not been seen.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (int, []byte, error) {
	var status int
	var body []byte
	err := s.db.QueryRowContext(ctx, queryGetIdempotentResponse, key).Scan(&status, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, store.ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get idempotent response: %w", err)
	}
	return status, body, nil
}

// SaveIdempotentResponse stores the response for a key. First writer wins.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, status int, body []byte) error {
	if _, err := s.db.ExecContext(ctx, querySaveIdempotentResponse, key, status, body); err != nil {
		return fmt.Errorf("failed to save idempotent response: %w", err)
	}
	return nil
}
