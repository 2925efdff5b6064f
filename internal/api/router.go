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

package api

import (
	"net/http"

	"custody-workflow-go/internal/auth"
	"custody-workflow-go/internal/notify"
	"custody-workflow-go/internal/purchase"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/verification"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

// Server exposes the custody workflow over HTTP.
type Server struct {
	store         store.LedgerStore
	auth          *auth.Service
	verifications *verification.Service
	purchases     *purchase.Service
	relay         *notify.Relay
	hub           *notify.Hub
	validate      *validator.Validate
}

func NewServer(
	ledger store.LedgerStore,
	authSvc *auth.Service,
	verifications *verification.Service,
	purchases *purchase.Service,
	relay *notify.Relay,
	hub *notify.Hub,
) *Server {
	return &Server{
		store:         ledger,
		auth:          authSvc,
		verifications: verifications,
		purchases:     purchases,
		relay:         relay,
		hub:           hub,
		validate:      validator.New(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.Authenticate)
		r.Use(s.Idempotency)

		r.Route("/api/verifications", func(r chi.Router) {
			r.Post("/", s.handleSubmitVerification)
			r.Get("/", s.handleListVerifications)
			r.Get("/{id}", s.handleGetVerification)
			r.Post("/{id}/code", s.handleSubmitCode)
			r.With(RequireAdmin).Post("/{id}/send-code", s.handleSendCode)
			r.With(RequireAdmin).Post("/{id}/approve", s.handleApproveVerification)
			r.With(RequireAdmin).Post("/{id}/reject", s.handleRejectVerification)
		})

		r.Route("/api/purchases", func(r chi.Router) {
			r.Post("/", s.handleCreatePurchase)
			r.Get("/", s.handleListPurchases)
			r.Get("/{id}", s.handleGetPurchase)
			r.With(RequireAdmin).Post("/{id}/approve", s.handleApprovePurchase)
			r.With(RequireAdmin).Post("/{id}/reject", s.handleRejectPurchase)
		})

		r.Route("/api/wallets", func(r chi.Router) {
			r.Get("/", s.handleListWallets)
			r.Get("/{coinType}/transactions", s.handleListTransactions)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/ws", s.handleNotificationSocket)
			r.Post("/read-all", s.handleMarkAllNotificationsRead)
			r.Post("/{id}/read", s.handleMarkNotificationRead)
			r.Delete("/{id}", s.handleDeleteNotification)
			r.Delete("/", s.handleClearNotifications)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
