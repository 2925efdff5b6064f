package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreatePurchaseRequest(ctx context.Context, params store.CreatePurchaseParams) (*models.PurchaseRequest, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx, queryInsertPurchase,
		id, params.UserId, params.WalletId, params.CoinType, params.Amount.String(), params.UserNote, now()); err != nil {
		return nil, fmt.Errorf("failed to insert purchase request: %w", err)
	}

	request, err := s.GetPurchaseRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Purchase request created",
		zap.String("request_id", request.Id),
		zap.String("user_id", request.UserId),
		zap.String("coin_type", request.CoinType),
		zap.String("amount", request.Amount.String()))

	s.publish(store.TablePurchaseRequests, store.OpInsert, purchaseFields(request))
	return request, nil
}

func (s *Service) GetPurchaseRequest(ctx context.Context, id string) (*models.PurchaseRequest, error) {
	row := s.db.QueryRowContext(ctx, queryGetPurchase, id)
	request, err := scanPurchase(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return request, err
}

func (s *Service) ListPurchaseRequests(ctx context.Context, status string, limit, offset int) ([]models.PurchaseRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryListPurchases, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	defer rows.Close()

	var requests []models.PurchaseRequest
	for rows.Next() {
		request, err := scanPurchase(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase rows: %w", err)
	}
	return requests, nil
}

// MarkPurchaseApproved moves pending -> approved. A second approval attempt
// finds no pending row and gets ErrStaleState, so no double execution.
func (s *Service) MarkPurchaseApproved(ctx context.Context, id, adminId, note string, at time.Time) (*models.PurchaseRequest, error) {
	return s.transitionPurchase(ctx, id, "approved", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryMarkPurchaseApproved, adminId, note, at, id)
	})
}

// MarkPurchaseRejected moves pending -> rejected. No funds move.
func (s *Service) MarkPurchaseRejected(ctx context.Context, id, adminId, note string, at time.Time) (*models.PurchaseRequest, error) {
	return s.transitionPurchase(ctx, id, "rejected", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryMarkPurchaseRejected, adminId, note, at, id)
	})
}

func (s *Service) transitionPurchase(ctx context.Context, id, target string, exec func() (sql.Result, error)) (*models.PurchaseRequest, error) {
	result, err := exec()
	if err != nil {
		return nil, fmt.Errorf("failed to transition purchase request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetPurchaseRequest(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrStaleState
	}

	request, err := s.GetPurchaseRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Purchase request transitioned",
		zap.String("request_id", id),
		zap.String("status", target),
		zap.String("admin_id", request.ApprovedBy))

	s.publish(store.TablePurchaseRequests, store.OpUpdate, purchaseFields(request))
	return request, nil
}

func scanPurchase(scan func(dest ...any) error) (*models.PurchaseRequest, error) {
	var r models.PurchaseRequest
	var amountStr string
	var approvedAt sql.NullTime
	err := scan(&r.Id, &r.UserId, &r.WalletId, &r.CoinType, &amountStr,
		&r.Status, &r.UserNote, &r.AdminNote, &r.ApprovedBy, &r.CreatedAt, &approvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan purchase request: %w", err)
	}
	r.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if approvedAt.Valid {
		r.ApprovedAt = &approvedAt.Time
	}
	return &r, nil
}

func purchaseFields(r *models.PurchaseRequest) map[string]string {
	return map[string]string{
		"id":         r.Id,
		"user_id":    r.UserId,
		"wallet_id":  r.WalletId,
		"coin_type":  r.CoinType,
		"amount":     r.Amount.String(),
		"status":     r.Status,
		"admin_note": r.AdminNote,
	}
}
