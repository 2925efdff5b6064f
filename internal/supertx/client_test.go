package supertx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-workflow-go/internal/models"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(models.ExecutorConfig{
		BaseURL:         server.URL,
		APIKey:          "test-key",
		SigningKey:      "test-signing-key",
		RequestTimeout:  5 * time.Second,
		PollInterval:    time.Millisecond,
		PollMaxInterval: 2 * time.Millisecond,
		PollDeadline:    time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestComposeReturnsPayloadAndQuote(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/compose" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var intent Intent
		if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
			t.Fatalf("failed to decode intent: %v", err)
		}
		if len(intent.Steps) != 1 || intent.Steps[0].Type != "transfer" {
			t.Errorf("unexpected intent steps: %+v", intent.Steps)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"payload": map[string]string{"raw": "0xabc"},
			"quote":   map[string]string{"gasCost": "0.002", "estimatedTime": "30s"},
		})
	}))

	result, err := client.Compose(context.Background(), Intent{
		ChainId: 8217,
		From:    "0xoperator",
		Steps:   []Step{{Type: "transfer", Token: "USDT", To: "0xuser", Amount: "100"}},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if result.Quote.GasCost != "0.002" {
		t.Errorf("expected gas cost 0.002, got %s", result.Quote.GasCost)
	}
	if len(result.Payload) == 0 {
		t.Error("expected non-empty payload")
	}
}

func TestInsufficientBalanceErrorDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"code":    "INSUFFICIENT_BALANCE",
			"message": "operator wallet cannot fund transfer",
			"details": map[string]string{
				"required":  "100",
				"available": "50",
				"shortage":  "50",
				"token":     "USDT",
			},
		})
	}))

	_, err := client.Compose(context.Background(), Intent{ChainId: 1})
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if !insufficient.Required.Equal(decimal.NewFromInt(100)) ||
		!insufficient.Available.Equal(decimal.NewFromInt(50)) ||
		!insufficient.Shortage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected shortfall detail: %+v", insufficient)
	}
	if insufficient.Token != "USDT" {
		t.Errorf("expected token USDT, got %s", insufficient.Token)
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"SLIPPAGE_EXCEEDED", ErrSlippageExceeded},
		{"NETWORK_ERROR", ErrNetwork},
		{"USER_REJECTED", ErrUserRejected},
		{"INVALID_API_KEY", ErrInvalidCredential},
	}

	for _, tc := range cases {
		code := tc.code
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"code": code, "message": "boom"})
		}))

		_, err := client.Execute(context.Background(), json.RawMessage(`{}`), "sig")
		if !errors.Is(err, tc.want) {
			t.Errorf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
	}
}

func TestUnknownErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"code": "SOMETHING_ELSE", "message": "boom"})
	}))

	_, err := client.Status(context.Background(), "0xdead")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "SOMETHING_ELSE" {
		t.Errorf("unexpected code %s", apiErr.Code)
	}
}

func TestAwaitCompletionPollsToTerminal(t *testing.T) {
	statuses := []string{StatusPending, StatusProcessing, StatusCompleted}
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := statuses[calls]
		if calls < len(statuses)-1 {
			calls++
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"details": map[string]any{
				"steps": []map[string]any{{"step": 1, "status": status}},
			},
		})
	}))

	result, err := client.AwaitCompletion(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("AwaitCompletion failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if calls < 2 {
		t.Errorf("expected at least 3 polls, got %d", calls+1)
	}
}

func TestAwaitCompletionTimesOut(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": StatusProcessing})
	}))
	client.poll.deadline = 20 * time.Millisecond

	_, err := client.AwaitCompletion(context.Background(), "0xstuck")
	if !errors.Is(err, ErrStatusTimeout) {
		t.Fatalf("expected ErrStatusTimeout, got %v", err)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	payload := json.RawMessage(`{"raw":"0xabc"}`)
	first := client.Sign(payload)
	second := client.Sign(payload)
	if first == "" || first != second {
		t.Errorf("expected deterministic non-empty signature, got %q and %q", first, second)
	}
}
