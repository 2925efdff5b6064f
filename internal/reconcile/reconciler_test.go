package reconcile

import (
	"context"
	"testing"
	"time"

	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type fakeStatusSource struct {
	statuses map[string]string
	calls    int
}

func (f *fakeStatusSource) Status(ctx context.Context, ref string) (*supertx.StatusResult, error) {
	f.calls++
	status, ok := f.statuses[ref]
	if !ok {
		return &supertx.StatusResult{Status: supertx.StatusPending}, nil
	}
	return &supertx.StatusResult{Status: status}, nil
}

type reconcileFixture struct {
	db      *database.Service
	status  *fakeStatusSource
	request *models.PurchaseRequest
	intent  *models.TransferIntent
}

func setupReconcileTest(t *testing.T) (*reconcileFixture, func()) {
	t.Helper()
	ctx := context.Background()

	dbService, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := dbService.CreateUser(ctx, store.CreateUserParams{
		Id: "user1", Name: "Test User", Email: "user1@example.com",
	}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	wallet, err := dbService.CreateWallet(ctx, store.CreateWalletParams{
		UserId: "user1", CoinType: "USDT", Address: "0xuser", WalletType: models.WalletHot,
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}

	request, err := dbService.CreatePurchaseRequest(ctx, store.CreatePurchaseParams{
		UserId:   "user1",
		WalletId: wallet.Id,
		CoinType: "USDT",
		Amount:   decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Failed to create purchase request: %v", err)
	}

	intent, err := dbService.CreateTransferIntent(ctx, store.CreateIntentParams{
		RequestId:   request.Id,
		UserId:      "user1",
		CoinType:    "USDT",
		Amount:      decimal.NewFromInt(100),
		FromAddress: "0xtreasury",
		ToAddress:   "0xuser",
	})
	if err != nil {
		t.Fatalf("Failed to create intent: %v", err)
	}

	fixture := &reconcileFixture{
		db:      dbService,
		status:  &fakeStatusSource{statuses: map[string]string{}},
		request: request,
		intent:  intent,
	}
	return fixture, dbService.Close
}

func newTestReconciler(t *testing.T, f *reconcileFixture, deadline time.Duration) *Reconciler {
	t.Helper()
	r, err := NewReconciler(f.db, f.status, models.ReconcilerConfig{
		Schedule:       "@every 5m",
		ReviewDeadline: deadline,
	})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	return r
}

func TestRunOnce_ReplaysCompletedTransfer(t *testing.T) {
	f, cleanup := setupReconcileTest(t)
	defer cleanup()

	ctx := context.Background()

	// Simulate a crash after the executor call: the intent has the
	// reference but none of the local writes happened.
	if err := f.db.SetIntentStatus(ctx, f.intent.Id, models.IntentExecuted, "0xcrashed"); err != nil {
		t.Fatalf("SetIntentStatus failed: %v", err)
	}
	f.status.statuses["0xcrashed"] = supertx.StatusCompleted

	r := newTestReconciler(t, f, time.Hour)
	r.RunOnce(ctx)

	request, err := f.db.GetPurchaseRequest(ctx, f.request.Id)
	if err != nil {
		t.Fatalf("GetPurchaseRequest failed: %v", err)
	}
	if request.Status != models.PurchaseApproved {
		t.Errorf("Expected approved after replay, got %s", request.Status)
	}

	wallet, err := f.db.GetWallet(ctx, "user1", "USDT")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after replay, got %s", wallet.Balance.String())
	}

	intents, err := f.db.GetUnrecordedIntents(ctx)
	if err != nil {
		t.Fatalf("GetUnrecordedIntents failed: %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("Expected intent recorded, got %d open intents", len(intents))
	}
}

func TestRunOnce_ReplayIsIdempotent(t *testing.T) {
	f, cleanup := setupReconcileTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := f.db.SetIntentStatus(ctx, f.intent.Id, models.IntentExecuted, "0xcrashed"); err != nil {
		t.Fatalf("SetIntentStatus failed: %v", err)
	}
	f.status.statuses["0xcrashed"] = supertx.StatusCompleted

	r := newTestReconciler(t, f, time.Hour)
	r.RunOnce(ctx)
	r.RunOnce(ctx)

	wallet, err := f.db.GetWallet(ctx, "user1", "USDT")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after repeated replay, got %s", wallet.Balance.String())
	}
}

func TestRunOnce_FailedTransferLeavesRequestPending(t *testing.T) {
	f, cleanup := setupReconcileTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := f.db.SetIntentStatus(ctx, f.intent.Id, models.IntentExecuted, "0xfailed"); err != nil {
		t.Fatalf("SetIntentStatus failed: %v", err)
	}
	f.status.statuses["0xfailed"] = supertx.StatusFailed

	r := newTestReconciler(t, f, time.Hour)
	r.RunOnce(ctx)

	request, err := f.db.GetPurchaseRequest(ctx, f.request.Id)
	if err != nil {
		t.Fatalf("GetPurchaseRequest failed: %v", err)
	}
	if request.Status != models.PurchasePending {
		t.Errorf("Expected request to stay pending, got %s", request.Status)
	}

	wallet, err := f.db.GetWallet(ctx, "user1", "USDT")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("Expected no credit for failed transfer, got %s", wallet.Balance.String())
	}
}

func TestRunOnce_StalledIntentGoesToReview(t *testing.T) {
	f, cleanup := setupReconcileTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := f.db.SetIntentStatus(ctx, f.intent.Id, models.IntentExecuted, "0xstalled"); err != nil {
		t.Fatalf("SetIntentStatus failed: %v", err)
	}
	// No status entry: the executor keeps reporting pending.

	r := newTestReconciler(t, f, 0)
	r.RunOnce(ctx)

	intents, err := f.db.GetUnrecordedIntents(ctx)
	if err != nil {
		t.Fatalf("GetUnrecordedIntents failed: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("Expected one open intent, got %d", len(intents))
	}
	if intents[0].Status != models.IntentNeedsReview {
		t.Errorf("Expected needs_review, got %s", intents[0].Status)
	}
}

func TestRunOnce_FreshIntentWithoutRefIsLeftAlone(t *testing.T) {
	f, cleanup := setupReconcileTest(t)
	defer cleanup()

	ctx := context.Background()
	r := newTestReconciler(t, f, time.Hour)
	r.RunOnce(ctx)

	if f.status.calls != 0 {
		t.Errorf("Expected no status poll for intent without executor ref, got %d", f.status.calls)
	}

	intents, err := f.db.GetUnrecordedIntents(ctx)
	if err != nil {
		t.Fatalf("GetUnrecordedIntents failed: %v", err)
	}
	if len(intents) != 1 || intents[0].Status != models.IntentCreated {
		t.Errorf("Expected intent to stay created, got %+v", intents)
	}
}
