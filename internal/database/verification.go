package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateVerificationRequest inserts a new pending request. At most one
// non-terminal request may exist per user.
func (s *Service) CreateVerificationRequest(ctx context.Context, params store.CreateVerificationParams) (*models.VerificationRequest, error) {
	var open int
	if err := s.db.QueryRowContext(ctx, queryCountOpenVerifications, params.UserId).Scan(&open); err != nil {
		return nil, fmt.Errorf("failed to count open verification requests: %w", err)
	}
	if open > 0 {
		return nil, store.ErrOpenVerification
	}

	id := uuid.New().String()
	createdAt := now()
	if _, err := s.db.ExecContext(ctx, queryInsertVerification,
		id, params.UserId, params.BankName, params.AccountNumber, params.AccountHolder, createdAt); err != nil {
		return nil, fmt.Errorf("failed to insert verification request: %w", err)
	}

	request, err := s.GetVerificationRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification request created",
		zap.String("request_id", request.Id),
		zap.String("user_id", request.UserId),
		zap.String("bank_name", request.BankName))

	s.publish(store.TableVerificationRequests, store.OpInsert, verificationFields(request))
	return request, nil
}

func (s *Service) GetVerificationRequest(ctx context.Context, id string) (*models.VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, queryGetVerification, id)
	request, err := scanVerification(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return request, err
}

func (s *Service) ListVerificationRequests(ctx context.Context, status string, limit, offset int) ([]models.VerificationRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryListVerifications, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification requests: %w", err)
	}
	defer rows.Close()

	var requests []models.VerificationRequest
	for rows.Next() {
		request, err := scanVerification(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verification rows: %w", err)
	}
	return requests, nil
}

// MarkVerificationCodeSent moves pending -> code_sent. ErrStaleState if the
// request is no longer pending.
func (s *Service) MarkVerificationCodeSent(ctx context.Context, id, code string, at time.Time) (*models.VerificationRequest, error) {
	return s.transitionVerification(ctx, id, "code_sent", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryMarkVerificationCodeSent, code, at, id)
	})
}

// RecordVerificationCodeInput moves code_sent -> code_submitted. No matching
// happens here; matching is deferred to admin review.
func (s *Service) RecordVerificationCodeInput(ctx context.Context, id, input string) (*models.VerificationRequest, error) {
	return s.transitionVerification(ctx, id, "code_submitted", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryRecordVerificationCodeInput, input, id)
	})
}

// MarkVerificationVerified moves expectedStatus -> verified, recording the
// provisioned smart-account address and chain id together with verified_at.
func (s *Service) MarkVerificationVerified(ctx context.Context, id, expectedStatus, address string, chainId int64, at time.Time) (*models.VerificationRequest, error) {
	return s.transitionVerification(ctx, id, "verified", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryMarkVerificationVerified, address, chainId, at, id, expectedStatus)
	})
}

// MarkVerificationRejected moves expectedStatus -> rejected.
func (s *Service) MarkVerificationRejected(ctx context.Context, id, expectedStatus, reason string) (*models.VerificationRequest, error) {
	return s.transitionVerification(ctx, id, "rejected", func() (sql.Result, error) {
		return s.db.ExecContext(ctx, queryMarkVerificationRejected, reason, id, expectedStatus)
	})
}

func (s *Service) transitionVerification(ctx context.Context, id, target string, exec func() (sql.Result, error)) (*models.VerificationRequest, error) {
	result, err := exec()
	if err != nil {
		return nil, fmt.Errorf("failed to transition verification request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Either the id does not exist or the status moved under us.
		if _, err := s.GetVerificationRequest(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrStaleState
	}

	request, err := s.GetVerificationRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification request transitioned",
		zap.String("request_id", id),
		zap.String("status", target))

	s.publish(store.TableVerificationRequests, store.OpUpdate, verificationFields(request))
	return request, nil
}

func scanVerification(scan func(dest ...any) error) (*models.VerificationRequest, error) {
	var r models.VerificationRequest
	var codeSentAt, verifiedAt sql.NullTime
	err := scan(&r.Id, &r.UserId, &r.BankName, &r.AccountNumber, &r.AccountHolder,
		&r.Status, &r.CodeSent, &r.UserInputCode, &codeSentAt,
		&r.SmartAccountAddress, &r.SmartAccountChainId, &r.RejectionReason,
		&r.CreatedAt, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan verification request: %w", err)
	}
	if codeSentAt.Valid {
		r.CodeSentAt = &codeSentAt.Time
	}
	if verifiedAt.Valid {
		r.VerifiedAt = &verifiedAt.Time
	}
	return &r, nil
}

func verificationFields(r *models.VerificationRequest) map[string]string {
	return map[string]string{
		"id":                    r.Id,
		"user_id":               r.UserId,
		"status":                r.Status,
		"bank_name":             r.BankName,
		"smart_account_address": r.SmartAccountAddress,
		"rejection_reason":      r.RejectionReason,
		"chain_id":              strconv.FormatInt(r.SmartAccountChainId, 10),
	}
}
