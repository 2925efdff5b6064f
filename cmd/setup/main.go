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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"custody-workflow-go/internal/auth"
	"custody-workflow-go/internal/common"
	"custody-workflow-go/internal/config"
	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ensureOperator creates the admin operator account if it does not exist.
func ensureOperator(ctx context.Context, dbService *database.Service, email, name, password string) (*models.User, error) {
	existing, err := dbService.GetUserByEmail(ctx, email)
	if err == nil {
		zap.L().Info("Operator account already exists",
			zap.String("email", email),
			zap.String("user_id", existing.Id))
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	operator, err := dbService.CreateUser(ctx, store.CreateUserParams{
		Id:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         "admin",
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Created operator account",
		zap.String("email", email),
		zap.String("user_id", operator.Id))
	return operator, nil
}

// registerCoins loads the coin registry file into the database.
func registerCoins(ctx context.Context, dbService *database.Service, coinsFile string) ([]models.Coin, error) {
	coins, err := common.LoadCoinConfig(coinsFile)
	if err != nil {
		return nil, err
	}

	for _, coin := range coins {
		if err := dbService.UpsertCoin(ctx, coin); err != nil {
			return nil, fmt.Errorf("failed to register coin %s: %w", coin.Symbol, err)
		}
		zap.L().Info("Registered coin",
			zap.String("symbol", coin.Symbol),
			zap.Int64("chain_id", coin.ChainId),
			zap.Bool("default", coin.IsDefault))
	}
	return coins, nil
}

// ensureOperatorWallets provisions one hot wallet per coin for the operator.
// Purchase approvals debit these wallets on chain.
func ensureOperatorWallets(ctx context.Context, dbService *database.Service, operator *models.User, coins []models.Coin, address string) error {
	for _, coin := range coins {
		wallet, err := dbService.CreateWallet(ctx, store.CreateWalletParams{
			UserId:     operator.Id,
			CoinType:   coin.Symbol,
			Address:    address,
			WalletType: models.WalletHot,
		})
		if err != nil {
			return fmt.Errorf("failed to create operator wallet for %s: %w", coin.Symbol, err)
		}
		zap.L().Info("Operator wallet ready",
			zap.String("coin_type", coin.Symbol),
			zap.String("wallet_id", wallet.Id))
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "Operator", "Operator account display name")
	passwordFlag := flag.String("password", "", "Operator account password (required on first run)")
	addressFlag := flag.String("address", "", "Operator treasury address for hot wallets")
	flag.Parse()

	logger.Info("Starting setup")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Opening the database creates the schema.
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if *passwordFlag == "" {
		logger.Fatal("A password is required: pass -password on first run")
	}

	operator, err := ensureOperator(ctx, dbService, cfg.Server.OperatorEmail, *nameFlag, *passwordFlag)
	if err != nil {
		logger.Fatal("Failed to ensure operator account", zap.Error(err))
	}

	coins, err := registerCoins(ctx, dbService, cfg.CoinsFile)
	if err != nil {
		logger.Fatal("Failed to register coins", zap.Error(err))
	}

	if err := ensureOperatorWallets(ctx, dbService, operator, coins, *addressFlag); err != nil {
		logger.Fatal("Failed to provision operator wallets", zap.Error(err))
	}

	logger.Info("Setup completed",
		zap.String("operator_id", operator.Id),
		zap.Int("coins", len(coins)))
}
