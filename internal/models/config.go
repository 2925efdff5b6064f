package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Executor   ExecutorConfig
	Server     ServerConfig
	Reconciler ReconcilerConfig
	CoinsFile  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ExecutorConfig holds Supertransaction API client settings
type ExecutorConfig struct {
	BaseURL         string
	APIKey          string
	SigningKey      string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollDeadline    time.Duration
}

// ServerConfig holds HTTP server and session settings
type ServerConfig struct {
	ListenAddr    string
	JWTSecret     string
	SessionTTL    time.Duration
	OperatorEmail string
}

// ReconcilerConfig holds transfer-intent replay settings
type ReconcilerConfig struct {
	Schedule       string
	ReviewDeadline time.Duration
}
