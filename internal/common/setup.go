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

package common

import (
	"context"
	"errors"
	"log"
	"strings"

	"custody-workflow-go/internal/auth"
	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"
	"custody-workflow-go/internal/purchase"
	"custody-workflow-go/internal/store"
	"custody-workflow-go/internal/supertx"
	"custody-workflow-go/internal/verification"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	DbService     *database.Service
	Executor      *supertx.Client
	Auth          *auth.Service
	Verifications *verification.Service
	Purchases     *purchase.Service
	OperatorId    string
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	executor, err := supertx.NewClient(cfg.Executor)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	authService, err := auth.NewService(dbService, cfg.Server.JWTSecret, cfg.Server.SessionTTL)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Resolving operator account", zap.String("email", cfg.Server.OperatorEmail))
	operator, err := dbService.GetUserByEmail(ctx, cfg.Server.OperatorEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("Operator account not found; run the setup command first",
				zap.String("email", cfg.Server.OperatorEmail))
		}
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService:     dbService,
		Executor:      executor,
		Auth:          authService,
		Verifications: verification.NewService(dbService, &accountAdapter{client: executor}),
		Purchases:     purchase.NewService(dbService, &purchase.SupertxExecutor{Client: executor}, operator.Id),
		OperatorId:    operator.Id,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the
// transfer executor. Useful for read-only operations like querying balances.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// accountAdapter narrows the supertx client to the provisioning contract.
type accountAdapter struct {
	client *supertx.Client
}

func (a *accountAdapter) ProvisionSmartAccount(ctx context.Context, userId string) (string, int64, error) {
	account, err := a.client.ProvisionSmartAccount(ctx, userId)
	if err != nil {
		return "", 0, err
	}
	return account.Address, account.ChainId, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
