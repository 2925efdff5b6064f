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
	"flag"
	"fmt"

	"custody-workflow-go/internal/common"
	"custody-workflow-go/internal/config"
	"custody-workflow-go/internal/database"
	"custody-workflow-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers       int
	totalWallets     int
	usersWithWallets int
}

func formatTxHash(hash string) string {
	if hash == "" {
		return "none"
	}
	if len(hash) > 10 {
		return hash[:10] + "..."
	}
	return hash
}

func printWallet(wallet models.Wallet, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-8s: %20s (%s, v%d, updated: %s)\n",
		symbol,
		wallet.CoinType,
		wallet.Balance.String(),
		wallet.WalletType,
		wallet.Version,
		wallet.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printTransactions(transactions []models.Transaction) {
	for _, tx := range transactions {
		fmt.Printf("   %-10s %20s  %s -> %s  tx: %s\n",
			tx.TxType,
			tx.Amount.String(),
			tx.BalanceBefore.String(),
			tx.BalanceAfter.String(),
			formatTxHash(tx.TxHash))
	}
}

func printUserHeader(user models.User, walletCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Wallets: %d\n", walletCount)
	common.PrintBoxSeparator(78)
}

func processUser(ctx context.Context, user models.User, dbService *database.Service, showTxs bool) (int, error) {
	wallets, err := dbService.GetUserWallets(ctx, user.Id)
	if err != nil {
		return 0, fmt.Errorf("failed to get wallets: %w", err)
	}

	if len(wallets) == 0 {
		return 0, nil
	}

	printUserHeader(user, len(wallets))
	for i, wallet := range wallets {
		printWallet(wallet, i == len(wallets)-1)
	}

	if showTxs {
		transactions, err := dbService.GetTransactionHistory(ctx, user.Id, "", 20, 0)
		if err != nil {
			return len(wallets), fmt.Errorf("failed to get transactions: %w", err)
		}
		if len(transactions) > 0 {
			fmt.Println("   Recent transactions:")
			printTransactions(transactions)
		}
	}

	return len(wallets), nil
}

func processUsersAndGenerateReport(ctx context.Context, users []models.User, dbService *database.Service, showTxs bool) balanceStats {
	stats := balanceStats{}

	for _, user := range users {
		stats.totalUsers++

		walletCount, err := processUser(ctx, user, dbService, showTxs)
		if err != nil {
			zap.L().Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}

		if walletCount > 0 {
			stats.usersWithWallets++
			stats.totalWallets += walletCount
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	txFlag := flag.Bool("transactions", false, "Include recent transactions per user")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var users []models.User
	if *emailFlag != "" {
		user, err := dbService.GetUserByEmail(ctx, *emailFlag)
		if err != nil {
			logger.Fatal("Failed to find user", zap.String("email", *emailFlag), zap.Error(err))
		}
		users = []models.User{*user}
	} else {
		users, err = dbService.ListUsers(ctx)
		if err != nil {
			logger.Fatal("Failed to list users", zap.Error(err))
		}
	}

	common.PrintHeader("USER WALLET REPORT", common.DefaultWidth)

	stats := processUsersAndGenerateReport(ctx, users, dbService, *txFlag)

	summary := fmt.Sprintf("SUMMARY: %d users with wallets (%d total wallets across %d users queried)",
		stats.usersWithWallets, stats.totalWallets, stats.totalUsers)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_wallets", stats.usersWithWallets),
		zap.Int("total_wallets", stats.totalWallets))
}
