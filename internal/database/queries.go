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

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, password_hash, role, verified, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, password_hash, role, verified, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	queryListUsers = `
		SELECT id, name, email, password_hash, role, verified, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at ASC`

	querySetUserVerified = `
		UPDATE users SET verified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	// Coin queries
	queryUpsertCoin = `
		INSERT INTO coins (symbol, name, chain_id, decimals, is_default)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			chain_id = excluded.chain_id,
			decimals = excluded.decimals,
			is_default = excluded.is_default`

	queryGetCoin = `
		SELECT symbol, name, chain_id, decimals, is_default
		FROM coins
		WHERE symbol = ?`

	queryGetDefaultCoins = `
		SELECT symbol, name, chain_id, decimals, is_default
		FROM coins
		WHERE is_default = 1
		ORDER BY symbol`

	// Wallet queries
	queryInsertWallet = `
		INSERT OR IGNORE INTO wallets (id, user_id, coin_type, address, wallet_type)
		VALUES (?, ?, ?, ?, ?)`

	queryGetWallet = `
		SELECT id, user_id, coin_type, address, balance, wallet_type, status, version, created_at, updated_at
		FROM wallets
		WHERE user_id = ? AND coin_type = ?`

	queryGetUserWallets = `
		SELECT id, user_id, coin_type, address, balance, wallet_type, status, version, created_at, updated_at
		FROM wallets
		WHERE user_id = ?
		ORDER BY coin_type`

	queryGetWalletById = `
		SELECT id, user_id, coin_type, address, balance, wallet_type, status, version, created_at, updated_at
		FROM wallets
		WHERE id = ?`

	queryUpdateWalletBalance = `
		UPDATE wallets
		SET balance = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	// Ledger queries
	queryCheckDuplicateReference = `
		SELECT id FROM transactions WHERE reference_id = ? AND tx_type = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, wallet_id, tx_type, coin_type, amount,
			balance_before, balance_after, reference_id, tx_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, wallet_id, tx_type, coin_type, amount,
		       balance_before, balance_after, reference_id, tx_hash, created_at
		FROM transactions
		WHERE user_id = ? AND (? = '' OR coin_type = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryGetTransactionByReference = `
		SELECT id, user_id, wallet_id, tx_type, coin_type, amount,
		       balance_before, balance_after, reference_id, tx_hash, created_at
		FROM transactions
		WHERE reference_id = ?
		LIMIT 1`

	queryReconcileWalletBalance = `
		SELECT COALESCE(SUM(CASE WHEN tx_type IN ('deposit', 'transfer') THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE wallet_id = ?`

	// Verification queries
	queryInsertVerification = `
		INSERT INTO verification_requests (id, user_id, bank_name, account_number, account_holder, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)`

	queryGetVerification = `
		SELECT id, user_id, bank_name, account_number, account_holder, status,
		       code_sent, user_input_code, code_sent_at, smart_account_address,
		       smart_account_chain_id, rejection_reason, created_at, verified_at
		FROM verification_requests
		WHERE id = ?`

	queryListVerifications = `
		SELECT id, user_id, bank_name, account_number, account_holder, status,
		       code_sent, user_input_code, code_sent_at, smart_account_address,
		       smart_account_chain_id, rejection_reason, created_at, verified_at
		FROM verification_requests
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryCountOpenVerifications = `
		SELECT COUNT(*) FROM verification_requests
		WHERE user_id = ? AND status IN ('pending', 'code_sent', 'code_submitted')`

	queryMarkVerificationCodeSent = `
		UPDATE verification_requests
		SET status = 'code_sent', code_sent = ?, code_sent_at = ?
		WHERE id = ? AND status = 'pending'`

	queryRecordVerificationCodeInput = `
		UPDATE verification_requests
		SET status = 'code_submitted', user_input_code = ?
		WHERE id = ? AND status = 'code_sent'`

	queryMarkVerificationVerified = `
		UPDATE verification_requests
		SET status = 'verified', smart_account_address = ?, smart_account_chain_id = ?, verified_at = ?
		WHERE id = ? AND status = ?`

	queryMarkVerificationRejected = `
		UPDATE verification_requests
		SET status = 'rejected', rejection_reason = ?
		WHERE id = ? AND status = ?`

	// Purchase queries
	queryInsertPurchase = `
		INSERT INTO purchase_requests (id, user_id, wallet_id, coin_type, amount, status, user_note, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`

	queryGetPurchase = `
		SELECT id, user_id, wallet_id, coin_type, amount, status,
		       user_note, admin_note, approved_by, created_at, approved_at
		FROM purchase_requests
		WHERE id = ?`

	queryListPurchases = `
		SELECT id, user_id, wallet_id, coin_type, amount, status,
		       user_note, admin_note, approved_by, created_at, approved_at
		FROM purchase_requests
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryMarkPurchaseApproved = `
		UPDATE purchase_requests
		SET status = 'approved', approved_by = ?, admin_note = ?, approved_at = ?
		WHERE id = ? AND status = 'pending'`

	queryMarkPurchaseRejected = `
		UPDATE purchase_requests
		SET status = 'rejected', approved_by = ?, admin_note = ?, approved_at = ?
		WHERE id = ? AND status = 'pending'`

	// Transfer intent queries
	queryInsertIntent = `
		INSERT INTO transfer_intents (id, request_id, user_id, coin_type, amount, from_address, to_address, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'created', ?, ?)`

	querySetIntentStatus = `
		UPDATE transfer_intents
		SET status = ?, executor_ref = CASE WHEN ? != '' THEN ? ELSE executor_ref END, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryMarkIntentRecorded = `
		UPDATE transfer_intents
		SET recorded = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryGetUnrecordedIntents = `
		SELECT id, request_id, user_id, coin_type, amount, from_address, to_address,
		       status, executor_ref, recorded, created_at, updated_at
		FROM transfer_intents
		WHERE recorded = 0 AND status != 'failed'
		ORDER BY created_at`

	// Idempotency key queries
	queryGetIdempotentResponse = `
		SELECT response_status, response_body FROM idempotency_keys WHERE key_id = ?`

	querySaveIdempotentResponse = `
		INSERT INTO idempotency_keys (key_id, response_status, response_body)
		VALUES (?, ?, ?)
		ON CONFLICT(key_id) DO NOTHING`
)
