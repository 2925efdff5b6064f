package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type fakeExecutor struct {
	txHash string
	err    error
	calls  int
	last   TransferParams
}

func (f *fakeExecutor) Transfer(ctx context.Context, params TransferParams) (string, error) {
	f.calls++
	f.last = params
	if f.err != nil {
		return "", f.err
	}
	return f.txHash, nil
}

type purchaseFixture struct {
	service  *Service
	db       *database.Service
	executor *fakeExecutor
	request  *models.PurchaseRequest
}

// setupPurchaseTest creates an operator with a funded coin wallet, a verified
// user with a USDT wallet, and one pending purchase request for 100 USDT.
func setupPurchaseTest(t *testing.T, withOperatorWallet bool) (*purchaseFixture, func()) {
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

	if err := dbService.UpsertCoin(ctx, models.Coin{
		Symbol: "USDT", Name: "Tether USD", ChainId: 8217, Decimals: 6, IsDefault: true,
	}); err != nil {
		t.Fatalf("Failed to register coin: %v", err)
	}

	if _, err := dbService.CreateUser(ctx, store.CreateUserParams{
		Id: "operator", Name: "Operator", Email: "operator@example.com", Role: "admin",
	}); err != nil {
		t.Fatalf("Failed to create operator: %v", err)
	}
	if _, err := dbService.CreateUser(ctx, store.CreateUserParams{
		Id: "user1", Name: "Test User", Email: "user1@example.com",
	}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	if withOperatorWallet {
		if _, err := dbService.CreateWallet(ctx, store.CreateWalletParams{
			UserId: "operator", CoinType: "USDT", Address: "0xtreasury", WalletType: models.WalletHot,
		}); err != nil {
			t.Fatalf("Failed to create operator wallet: %v", err)
		}
	}

	if _, err := dbService.CreateWallet(ctx, store.CreateWalletParams{
		UserId: "user1", CoinType: "USDT", Address: "0xuser", WalletType: models.WalletHot,
	}); err != nil {
		t.Fatalf("Failed to create user wallet: %v", err)
	}

	executor := &fakeExecutor{txHash: "0xtransfer1"}
	service := NewService(dbService, executor, "operator")

	request, err := service.Create(ctx, "user1", "USDT", decimal.NewFromInt(100), "first buy")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fixture := &purchaseFixture{
		service:  service,
		db:       dbService,
		executor: executor,
		request:  request,
	}
	return fixture, dbService.Close
}

func TestCreate_RequiresWallet(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	_, err := f.service.Create(context.Background(), "user1", "KRWQ", decimal.NewFromInt(10), "")
	if !errors.Is(err, store.ErrNoWallet) {
		t.Fatalf("Expected ErrNoWallet for coin without wallet, got %v", err)
	}
}

func TestApprove_RequiresNote(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	var validation *store.ValidationError
	_, err := f.service.Approve(context.Background(), "operator", f.request.Id, "  ")
	if !errors.As(err, &validation) {
		t.Fatalf("Expected ValidationError for blank note, got %v", err)
	}
	if f.executor.calls != 0 {
		t.Errorf("Expected no executor call, got %d", f.executor.calls)
	}
}

func TestApprove_MissingOperatorWallet(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, false)
	defer cleanup()

	ctx := context.Background()
	_, err := f.service.Approve(ctx, "operator", f.request.Id, "ok")
	if !errors.Is(err, store.ErrMissingOperatorWallet) {
		t.Fatalf("Expected ErrMissingOperatorWallet, got %v", err)
	}

	request, err := f.db.GetPurchaseRequest(ctx, f.request.Id)
	if err != nil {
		t.Fatalf("GetPurchaseRequest failed: %v", err)
	}
	if request.Status != models.PurchasePending {
		t.Errorf("Expected request to stay pending, got %s", request.Status)
	}
	if f.executor.calls != 0 {
		t.Errorf("Expected no executor call, got %d", f.executor.calls)
	}
}

func TestApprove_InsufficientOperatorBalance(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	ctx := context.Background()
	f.executor.err = &supertx.InsufficientBalanceError{
		Token:     "USDT",
		Required:  decimal.NewFromInt(100),
		Available: decimal.NewFromInt(50),
		Shortage:  decimal.NewFromInt(50),
	}

	var insufficient *supertx.InsufficientBalanceError
	_, err := f.service.Approve(ctx, "operator", f.request.Id, "ok")
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientBalanceError, got %v", err)
	}
	if !insufficient.Shortage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected shortage 50, got %s", insufficient.Shortage.String())
	}

	// The request stays pending and nothing reaches the ledger.
	request, err := f.db.GetPurchaseRequest(ctx, f.request.Id)
	if err != nil {
		t.Fatalf("GetPurchaseRequest failed: %v", err)
	}
	if request.Status != models.PurchasePending {
		t.Errorf("Expected pending after failed transfer, got %s", request.Status)
	}

	history, err := f.db.GetTransactionHistory(ctx, "user1", "USDT", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no ledger rows, got %d", len(history))
	}

	// The intent is marked failed so the reconciler leaves it alone.
	intents, err := f.db.GetUnrecordedIntents(ctx)
	if err != nil {
		t.Fatalf("GetUnrecordedIntents failed: %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("Expected no open intents after failure, got %d", len(intents))
	}
}

func TestApprove_Success(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	ctx := context.Background()
	approved, err := f.service.Approve(ctx, "operator", f.request.Id, "approved after review")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.PurchaseApproved {
		t.Errorf("Expected approved, got %s", approved.Status)
	}
	if approved.ApprovedBy != "operator" {
		t.Errorf("Expected approved_by operator, got %s", approved.ApprovedBy)
	}
	if approved.ApprovedAt == nil {
		t.Error("Expected approved_at to be set")
	}

	// Executor was invoked with operator funds toward the user address.
	if f.executor.calls != 1 {
		t.Fatalf("Expected one executor call, got %d", f.executor.calls)
	}
	if f.executor.last.FromAddress != "0xtreasury" || f.executor.last.ToAddress != "0xuser" {
		t.Errorf("Unexpected transfer route %s -> %s",
			f.executor.last.FromAddress, f.executor.last.ToAddress)
	}

	// Exactly one ledger row referencing the request, crediting the amount.
	wallet, err := f.db.GetWallet(ctx, "user1", "USDT")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", wallet.Balance.String())
	}

	tx, err := f.db.GetTransactionByReference(ctx, f.request.Id)
	if err != nil {
		t.Fatalf("GetTransactionByReference failed: %v", err)
	}
	if tx.TxType != models.TxTypeDeposit {
		t.Errorf("Expected deposit, got %s", tx.TxType)
	}
	if tx.TxHash != "0xtransfer1" {
		t.Errorf("Expected executor tx hash, got %s", tx.TxHash)
	}

	// The intent outbox is fully drained.
	intents, err := f.db.GetUnrecordedIntents(ctx)
	if err != nil {
		t.Fatalf("GetUnrecordedIntents failed: %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("Expected no unrecorded intents, got %d", len(intents))
	}
}

func TestApprove_SecondApprovalIsStale(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	ctx := context.Background()
	if _, err := f.service.Approve(ctx, "operator", f.request.Id, "ok"); err != nil {
		t.Fatalf("First approve failed: %v", err)
	}

	_, err := f.service.Approve(ctx, "operator", f.request.Id, "again")
	if !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("Expected ErrStaleState, got %v", err)
	}

	// The double approval must not double-credit.
	wallet, err := f.db.GetWallet(ctx, "user1", "USDT")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after double approval, got %s", wallet.Balance.String())
	}
	if f.executor.calls != 1 {
		t.Errorf("Expected one executor call, got %d", f.executor.calls)
	}
}

func TestReject_RequiresNote(t *testing.T) {
	f, cleanup := setupPurchaseTest(t, true)
	defer cleanup()

	ctx := context.Background()
	var validation *store.ValidationError
	if _, err := f.service.Reject(ctx, "operator", f.request.Id, ""); !errors.As(err, &validation) {
		t.Fatalf("Expected ValidationError for blank note, got %v", err)
	}

	rejected, err := f.service.Reject(ctx, "operator", f.request.Id, "suspicious volume")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.PurchaseRejected {
		t.Errorf("Expected rejected, got %s", rejected.Status)
	}
	if rejected.AdminNote != "suspicious volume" {
		t.Errorf("Expected admin note recorded, got %q", rejected.AdminNote)
	}
}
