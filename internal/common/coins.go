package common

import (
	"fmt"
	"os"
	"path/filepath"

	"custody-workflow-go/internal/models"

	"gopkg.in/yaml.v2"
)

type CoinsConfig struct {
	Coins []models.Coin `yaml:"coins"`
}

// LoadCoinConfig reads the coin registry file. Relative paths resolve
// against the working directory.
func LoadCoinConfig(coinsFile string) ([]models.Coin, error) {
	var coinsPath string
	if filepath.IsAbs(coinsFile) {
		coinsPath = coinsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		coinsPath = filepath.Join(wd, coinsFile)
	}

	data, err := os.ReadFile(coinsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", coinsFile, err)
	}

	var config CoinsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", coinsFile, err)
	}

	for i, coin := range config.Coins {
		if coin.Symbol == "" {
			return nil, fmt.Errorf("coin at index %d missing symbol", i)
		}
		if coin.ChainId == 0 {
			return nil, fmt.Errorf("coin %s missing chain_id", coin.Symbol)
		}
	}

	return config.Coins, nil
}

// DefaultCoinSymbols returns the symbols flagged as default in the registry.
func DefaultCoinSymbols(coins []models.Coin) []string {
	var symbols []string
	for _, coin := range coins {
		if coin.IsDefault {
			symbols = append(symbols, coin.Symbol)
		}
	}
	return symbols
}
