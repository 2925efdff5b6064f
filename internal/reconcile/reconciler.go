/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StatusSource reports the executor-side status of a submitted transfer.
// Satisfied by the Supertransaction client.
type StatusSource interface {
	Status(ctx context.Context, ref string) (*supertx.StatusResult, error)
}

// Reconciler replays the ledger side of transfer intents whose executor call
// succeeded but whose local writes did not complete. It runs once at startup
// and then on a cron schedule.
type Reconciler struct {
	store          store.LedgerStore
	status         StatusSource
	reviewDeadline time.Duration
	cron           *cron.Cron
}

func NewReconciler(ledger store.LedgerStore, status StatusSource, cfg models.ReconcilerConfig) (*Reconciler, error) {
	r := &Reconciler{
		store:          ledger,
		status:         status,
		reviewDeadline: cfg.ReviewDeadline,
		cron:           cron.New(),
	}

	_, err := r.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconciler schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start begins the scheduled runs.
func (r *Reconciler) Start() {
	r.cron.Start()
	zap.L().Info("Reconciler started", zap.Duration("review_deadline", r.reviewDeadline))
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce processes every unrecorded intent.
func (r *Reconciler) RunOnce(ctx context.Context) {
	intents, err := r.store.GetUnrecordedIntents(ctx)
	if err != nil {
		zap.L().Error("Failed to load unrecorded intents", zap.Error(err))
		return
	}
	if len(intents) == 0 {
		return
	}

	zap.L().Info("Reconciling transfer intents", zap.Int("count", len(intents)))
	for _, intent := range intents {
		if err := r.reconcile(ctx, intent); err != nil {
			zap.L().Error("Failed to reconcile intent",
				zap.String("intent_id", intent.Id),
				zap.String("request_id", intent.RequestId),
				zap.Error(err))
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, intent models.TransferIntent) error {
	// Intents with no executor reference never reached the executor. They
	// cannot complete on their own; past the deadline they go to review.
	if intent.ExecutorRef == "" {
		if time.Since(intent.CreatedAt) > r.reviewDeadline {
			return r.store.SetIntentStatus(ctx, intent.Id, models.IntentNeedsReview, "")
		}
		return nil
	}

	result, err := r.status.Status(ctx, intent.ExecutorRef)
	if err != nil {
		if errors.Is(err, supertx.ErrNetwork) {
			// Transient; the next run retries.
			return nil
		}
		return err
	}

	switch result.Status {
	case supertx.StatusCompleted:
		return r.replay(ctx, intent)
	case supertx.StatusFailed:
		zap.L().Warn("Transfer failed on executor; request stays pending",
			zap.String("intent_id", intent.Id),
			zap.String("request_id", intent.RequestId))
		return r.store.SetIntentStatus(ctx, intent.Id, models.IntentFailed, intent.ExecutorRef)
	default:
		if time.Since(intent.CreatedAt) > r.reviewDeadline {
			zap.L().Warn("Transfer still pending past review deadline",
				zap.String("intent_id", intent.Id),
				zap.String("executor_ref", intent.ExecutorRef))
			return r.store.SetIntentStatus(ctx, intent.Id, models.IntentNeedsReview, intent.ExecutorRef)
		}
		return nil
	}
}

// replay re-applies the ledger writes for a completed transfer. Every step
// is idempotent so a crash mid-replay is safe.
func (r *Reconciler) replay(ctx context.Context, intent models.TransferIntent) error {
	request, err := r.store.GetPurchaseRequest(ctx, intent.RequestId)
	if err != nil {
		return err
	}

	if request.Status == models.PurchasePending {
		_, err = r.store.MarkPurchaseApproved(ctx, request.Id, request.ApprovedBy,
			"approved by reconciler after executor completion", time.Now().UTC())
		if err != nil && !errors.Is(err, store.ErrStaleState) {
			return err
		}
	}

	wallet, err := r.store.GetWallet(ctx, intent.UserId, intent.CoinType)
	if err != nil {
		return err
	}

	_, err = r.store.CreditWallet(ctx, store.LedgerEntryParams{
		WalletId:    wallet.Id,
		TxType:      models.TxTypeDeposit,
		Amount:      intent.Amount,
		ReferenceId: intent.RequestId,
		TxHash:      intent.ExecutorRef,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
		return err
	}

	if err := r.store.MarkIntentRecorded(ctx, intent.Id); err != nil {
		return err
	}

	zap.L().Info("Replayed ledger writes for completed transfer",
		zap.String("intent_id", intent.Id),
		zap.String("request_id", intent.RequestId),
		zap.String("tx_hash", intent.ExecutorRef))
	return nil
}
