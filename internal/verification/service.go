package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"go.uber.org/zap"
)

// codePrefix plus six random alphanumerics form the depositor-name code of
// the simulated 1-unit bank transfer.
const (
	codePrefix   = "VERIFY"
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

var accountNumberPattern = regexp.MustCompile(`^\d{10,14}$`)

// AccountProvisioner obtains the deterministic smart-account address for a
// user. The supertx client is adapted to this in the service wiring.
type AccountProvisioner interface {
	ProvisionSmartAccount(ctx context.Context, userId string) (address string, chainId int64, err error)
}

// ProvisionGapError reports side effects that failed after the request
// reached verified. The status stays verified; the gap is recoverable by
// re-running provisioning.
type ProvisionGapError struct {
	RequestId    string
	MissingCoins []string
	FlagNotSet   bool
}

func (e *ProvisionGapError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.MissingCoins) > 0 {
		parts = append(parts, fmt.Sprintf("wallets not created for %s", strings.Join(e.MissingCoins, ", ")))
	}
	if e.FlagNotSet {
		parts = append(parts, "user verified flag not set")
	}
	return fmt.Sprintf("request %s verified with gaps: %s", e.RequestId, strings.Join(parts, "; "))
}

// Service advances verification requests through their state machine and
// provisions wallets on success.
type Service struct {
	store    store.LedgerStore
	accounts AccountProvisioner
}

func NewService(ledger store.LedgerStore, accounts AccountProvisioner) *Service {
	return &Service{store: ledger, accounts: accounts}
}

// Submit creates a new pending request for the user. The account number must
// be 10-14 digits after separators are removed.
func (s *Service) Submit(ctx context.Context, userId, bankName, accountNumber, accountHolder string) (*models.VerificationRequest, error) {
	if strings.TrimSpace(bankName) == "" {
		return nil, &store.ValidationError{Field: "bank_name", Reason: "cannot be blank"}
	}
	if strings.TrimSpace(accountHolder) == "" {
		return nil, &store.ValidationError{Field: "account_holder", Reason: "cannot be blank"}
	}

	normalized := strings.NewReplacer("-", "", " ", "").Replace(accountNumber)
	if !accountNumberPattern.MatchString(normalized) {
		return nil, &store.ValidationError{Field: "account_number", Reason: "must be 10 to 14 digits"}
	}

	return s.store.CreateVerificationRequest(ctx, store.CreateVerificationParams{
		UserId:        userId,
		BankName:      strings.TrimSpace(bankName),
		AccountNumber: normalized,
		AccountHolder: strings.TrimSpace(accountHolder),
	})
}

// SendCode generates a verification code and moves pending -> code_sent.
// The 1-unit bank transfer bearing the code as depositor name is simulated.
func (s *Service) SendCode(ctx context.Context, adminId, requestId string) (*models.VerificationRequest, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	request, err := s.store.MarkVerificationCodeSent(ctx, requestId, code, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification code sent",
		zap.String("request_id", requestId),
		zap.String("admin_id", adminId),
		zap.String("bank_name", request.BankName))
	return request, nil
}

// SubmitCode records the user's free-text code and moves
// code_sent -> code_submitted. Matching is deferred to admin review.
func (s *Service) SubmitCode(ctx context.Context, userId, requestId, code string) (*models.VerificationRequest, error) {
	current, err := s.store.GetVerificationRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if current.UserId != userId {
		return nil, store.ErrNotFound
	}

	return s.store.RecordVerificationCodeInput(ctx, requestId, code)
}

// Approve moves pending or code_submitted -> verified. From code_submitted
// the submitted code must equal the sent code exactly, or MismatchError is
// returned and the state is untouched. On success the smart account is
// provisioned, one hot wallet per default coin is created with balance 0,
// and the user's verified flag is set. A failure after the status change
// never rolls it back; it is reported as a ProvisionGapError.
func (s *Service) Approve(ctx context.Context, adminId, requestId string) (*models.VerificationRequest, error) {
	request, err := s.store.GetVerificationRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case models.VerificationPending:
		// direct approval without code round-trip
	case models.VerificationCodeSubmitted:
		if request.UserInputCode != request.CodeSent {
			zap.L().Warn("Verification code mismatch",
				zap.String("request_id", requestId),
				zap.String("admin_id", adminId))
			return nil, &store.MismatchError{RequestId: requestId}
		}
	default:
		return nil, store.ErrStaleState
	}

	address, chainId, err := s.accounts.ProvisionSmartAccount(ctx, request.UserId)
	if err != nil {
		return nil, fmt.Errorf("failed to provision smart account: %w", err)
	}

	verified, err := s.store.MarkVerificationVerified(ctx, requestId, request.Status,
		address, chainId, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification request approved",
		zap.String("request_id", requestId),
		zap.String("admin_id", adminId),
		zap.String("user_id", request.UserId),
		zap.String("smart_account", address))

	// From here on the request stays verified; remaining side effects are
	// retried individually and reported as gaps, never rolled back.
	gap := &ProvisionGapError{RequestId: requestId}

	coins, err := s.store.GetDefaultCoins(ctx)
	if err != nil {
		zap.L().Error("Failed to load default coins after approval",
			zap.String("request_id", requestId), zap.Error(err))
		gap.MissingCoins = append(gap.MissingCoins, "all")
	}
	for _, coin := range coins {
		_, err := s.store.CreateWallet(ctx, store.CreateWalletParams{
			UserId:     request.UserId,
			CoinType:   coin.Symbol,
			Address:    address,
			WalletType: models.WalletHot,
		})
		if err != nil {
			zap.L().Error("Failed to provision wallet after approval",
				zap.String("request_id", requestId),
				zap.String("coin_type", coin.Symbol),
				zap.Error(err))
			gap.MissingCoins = append(gap.MissingCoins, coin.Symbol)
		}
	}

	if err := s.store.SetUserVerified(ctx, request.UserId, true); err != nil {
		zap.L().Error("Failed to set user verified flag after approval",
			zap.String("request_id", requestId), zap.Error(err))
		gap.FlagNotSet = true
	}

	if len(gap.MissingCoins) > 0 || gap.FlagNotSet {
		return verified, gap
	}
	return verified, nil
}

// Reject moves pending or code_submitted -> rejected. A non-empty reason is
// required. The user may resubmit afterwards; that creates a new record.
func (s *Service) Reject(ctx context.Context, adminId, requestId, reason string) (*models.VerificationRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &store.ValidationError{Field: "rejection_reason", Reason: "cannot be blank"}
	}

	request, err := s.store.GetVerificationRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if request.Status != models.VerificationPending && request.Status != models.VerificationCodeSubmitted {
		return nil, store.ErrStaleState
	}

	rejected, err := s.store.MarkVerificationRejected(ctx, requestId, request.Status, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}

	zap.L().Info("Verification request rejected",
		zap.String("request_id", requestId),
		zap.String("admin_id", adminId),
		zap.String("reason", reason))
	return rejected, nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return codePrefix + string(code), nil
}
