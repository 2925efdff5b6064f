package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-workflow-go/internal/auth"
	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

func setupMiddlewareTest(t *testing.T) (*Server, func()) {
	t.Helper()

	dbService, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return &Server{store: dbService}, dbService.Close
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	server, cleanup := setupMiddlewareTest(t)
	defer cleanup()

	calls := 0
	handler := server.Idempotency(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"req-1"}`))
	}))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
	req.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
	req2.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(second, req2)

	if calls != 1 {
		t.Fatalf("Expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated {
		t.Errorf("Expected replayed status 201, got %d", second.Code)
	}
	if second.Body.String() != `{"id":"req-1"}` {
		t.Errorf("Expected replayed body, got %q", second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Error("Expected Idempotency-Replayed header on replay")
	}
}

func TestIdempotency_DistinctKeysRunSeparately(t *testing.T) {
	server, cleanup := setupMiddlewareTest(t)
	defer cleanup()

	calls := 0
	handler := server.Idempotency(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, key := range []string{"key-a", "key-b", ""} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		handler.ServeHTTP(rec, req)
	}

	if calls != 3 {
		t.Errorf("Expected 3 handler runs, got %d", calls)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"admin allowed", &auth.Claims{Role: "admin"}, http.StatusOK},
		{"user forbidden", &auth.Claims{Role: "user"}, http.StatusForbidden},
		{"no claims forbidden", nil, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/verifications/v1/approve", nil)
			if tc.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), claimsKey, tc.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("Expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
