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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"custody-workflow-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := getEnvDuration("SUPERTX_REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("SUPERTX_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	pollMaxInterval, err := getEnvDuration("SUPERTX_POLL_MAX_INTERVAL", 40*time.Second)
	if err != nil {
		return nil, err
	}

	pollDeadline, err := getEnvDuration("SUPERTX_POLL_DEADLINE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	reviewDeadline, err := getEnvDuration("RECONCILER_REVIEW_DEADLINE", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "custody.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Executor: models.ExecutorConfig{
			BaseURL:         getEnvString("SUPERTX_BASE_URL", "https://api.supertx.example"),
			APIKey:          os.Getenv("SUPERTX_API_KEY"),
			SigningKey:      os.Getenv("SUPERTX_SIGNING_KEY"),
			RequestTimeout:  requestTimeout,
			PollInterval:    pollInterval,
			PollMaxInterval: pollMaxInterval,
			PollDeadline:    pollDeadline,
		},
		Server: models.ServerConfig{
			ListenAddr:    getEnvString("LISTEN_ADDR", ":8080"),
			JWTSecret:     os.Getenv("JWT_SECRET"),
			SessionTTL:    sessionTTL,
			OperatorEmail: getEnvString("OPERATOR_EMAIL", "admin@custody.local"),
		},
		Reconciler: models.ReconcilerConfig{
			Schedule:       getEnvString("RECONCILER_SCHEDULE", "@every 5m"),
			ReviewDeadline: reviewDeadline,
		},
		CoinsFile: getEnvString("COINS_FILE", "coins.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
