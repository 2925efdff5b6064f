package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestUser(t *testing.T, service *Service, userId string) {
	t.Helper()
	_, err := service.CreateUser(context.Background(), store.CreateUserParams{
		Id:    userId,
		Name:  "Test User " + userId,
		Email: userId + "@example.com",
	})
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
}

func TestVerificationLifecycle(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1")

	request, err := service.CreateVerificationRequest(ctx, store.CreateVerificationParams{
		UserId:        "user1",
		BankName:      "Shinhan",
		AccountNumber: "1234567890",
		AccountHolder: "Hong Gildong",
	})
	if err != nil {
		t.Fatalf("CreateVerificationRequest failed: %v", err)
	}
	if request.Status != models.VerificationPending {
		t.Fatalf("Expected pending, got %s", request.Status)
	}

	sent, err := service.MarkVerificationCodeSent(ctx, request.Id, "VERIFYAB12CD", time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkVerificationCodeSent failed: %v", err)
	}
	if sent.Status != models.VerificationCodeSent {
		t.Errorf("Expected code_sent, got %s", sent.Status)
	}
	if sent.CodeSentAt == nil {
		t.Error("Expected code_sent_at to be set")
	}

	submitted, err := service.RecordVerificationCodeInput(ctx, request.Id, "VERIFYAB12CD")
	if err != nil {
		t.Fatalf("RecordVerificationCodeInput failed: %v", err)
	}
	if submitted.Status != models.VerificationCodeSubmitted {
		t.Errorf("Expected code_submitted, got %s", submitted.Status)
	}

	verified, err := service.MarkVerificationVerified(ctx, request.Id,
		models.VerificationCodeSubmitted, "0xaccount", 8217, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkVerificationVerified failed: %v", err)
	}
	if verified.Status != models.VerificationVerified {
		t.Errorf("Expected verified, got %s", verified.Status)
	}
	if verified.SmartAccountAddress != "0xaccount" {
		t.Errorf("Expected smart account address recorded, got %q", verified.SmartAccountAddress)
	}
}

func TestVerificationTransition_StaleState(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1")

	request, err := service.CreateVerificationRequest(ctx, store.CreateVerificationParams{
		UserId:        "user1",
		BankName:      "Shinhan",
		AccountNumber: "1234567890",
		AccountHolder: "Hong Gildong",
	})
	if err != nil {
		t.Fatalf("CreateVerificationRequest failed: %v", err)
	}

	if _, err := service.MarkVerificationRejected(ctx, request.Id,
		models.VerificationPending, "documents unreadable"); err != nil {
		t.Fatalf("MarkVerificationRejected failed: %v", err)
	}

	// Rejected is terminal; a second transition must lose the CAS.
	_, err = service.MarkVerificationVerified(ctx, request.Id,
		models.VerificationPending, "0xaccount", 8217, time.Now().UTC())
	if !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("Expected ErrStaleState, got %v", err)
	}

	got, err := service.GetVerificationRequest(ctx, request.Id)
	if err != nil {
		t.Fatalf("GetVerificationRequest failed: %v", err)
	}
	if got.Status != models.VerificationRejected {
		t.Errorf("Expected status to stay rejected, got %s", got.Status)
	}
}

func TestVerification_OneOpenRequestPerUser(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1")

	params := store.CreateVerificationParams{
		UserId:        "user1",
		BankName:      "Shinhan",
		AccountNumber: "1234567890",
		AccountHolder: "Hong Gildong",
	}

	first, err := service.CreateVerificationRequest(ctx, params)
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	if _, err := service.CreateVerificationRequest(ctx, params); !errors.Is(err, store.ErrOpenVerification) {
		t.Fatalf("Expected ErrOpenVerification, got %v", err)
	}

	// After the open request terminates, a new submission is allowed.
	if _, err := service.MarkVerificationRejected(ctx, first.Id,
		models.VerificationPending, "resubmit with a valid account"); err != nil {
		t.Fatalf("MarkVerificationRejected failed: %v", err)
	}
	if _, err := service.CreateVerificationRequest(ctx, params); err != nil {
		t.Fatalf("Expected new request after rejection, got %v", err)
	}
}

func TestPurchaseTransition_DoubleApproval(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	wallet := createTestWallet(t, service, "user1", "USDT")

	request, err := service.CreatePurchaseRequest(ctx, store.CreatePurchaseParams{
		UserId:   "user1",
		WalletId: wallet.Id,
		CoinType: "USDT",
		Amount:   decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("CreatePurchaseRequest failed: %v", err)
	}

	approved, err := service.MarkPurchaseApproved(ctx, request.Id, "admin1", "looks good", time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkPurchaseApproved failed: %v", err)
	}
	if approved.Status != models.PurchaseApproved {
		t.Errorf("Expected approved, got %s", approved.Status)
	}

	_, err = service.MarkPurchaseApproved(ctx, request.Id, "admin2", "me too", time.Now().UTC())
	if !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("Expected ErrStaleState on second approval, got %v", err)
	}
}
