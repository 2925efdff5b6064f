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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db  *sql.DB
	bus *store.Bus
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db, bus: store.NewBus()}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	s.bus.Close()
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Subscribe returns a change-event stream filtered by table, operation and
// column equality. Events are published after the originating write commits.
func (s *Service) Subscribe(table string, ops []store.Op, filter map[string]string) *store.Subscription {
	return s.bus.Subscribe(table, ops, filter)
}

func (s *Service) publish(table string, op store.Op, fields map[string]string) {
	s.bus.Publish(store.ChangeEvent{Table: table, Op: op, Fields: fields})
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		verified BOOLEAN NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS coins (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		chain_id INTEGER NOT NULL,
		decimals INTEGER NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		coin_type TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		wallet_type TEXT NOT NULL DEFAULT 'hot',
		status TEXT NOT NULL DEFAULT 'active',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, coin_type)
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_user ON wallets(user_id);

	-- Append-only ledger. Every wallet balance mutation writes exactly one row.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		coin_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, coin_type);
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference_id);

	CREATE TABLE IF NOT EXISTS verification_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_holder TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		code_sent TEXT NOT NULL DEFAULT '',
		user_input_code TEXT NOT NULL DEFAULT '',
		code_sent_at TIMESTAMP,
		smart_account_address TEXT NOT NULL DEFAULT '',
		smart_account_chain_id INTEGER NOT NULL DEFAULT 0,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		verified_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_verification_user ON verification_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_verification_status ON verification_requests(status);

	CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		coin_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		user_note TEXT NOT NULL DEFAULT '',
		admin_note TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		approved_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_purchase_user ON purchase_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_purchase_status ON purchase_requests(status);

	-- Outbox: written before each transfer-executor call, replayed by the
	-- reconciler when the executor succeeded but the ledger write is missing.
	CREATE TABLE IF NOT EXISTS transfer_intents (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		coin_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		executor_ref TEXT NOT NULL DEFAULT '',
		recorded BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_intents_request ON transfer_intents(request_id);
	CREATE INDEX IF NOT EXISTS idx_intents_recorded ON transfer_intents(recorded);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key_id TEXT PRIMARY KEY,
		response_status INTEGER NOT NULL,
		response_body BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
