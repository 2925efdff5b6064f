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

package supertx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"custody-workflow-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Step statuses reported by the Supertransaction API.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Step is one leg of a supertransaction intent.
type Step struct {
	Type   string `json:"type"` // transfer, swap or bridge
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// GasPayment describes who pays the network fee.
type GasPayment struct {
	Token          string `json:"token,omitempty"`
	Sponsor        string `json:"sponsor,omitempty"`
	MaxUserPayment string `json:"maxUserPayment,omitempty"`
}

// Intent is the multi-step transaction description sent to /compose.
type Intent struct {
	ChainId    int64      `json:"chainId"`
	From       string     `json:"from"`
	Steps      []Step     `json:"steps"`
	GasPayment GasPayment `json:"gasPayment"`
}

// Quote is the gas estimate returned by /compose.
type Quote struct {
	GasCost       string `json:"gasCost"`
	EstimatedTime string `json:"estimatedTime"`
}

// ComposeResult carries the opaque signable payload plus the quote.
type ComposeResult struct {
	Payload json.RawMessage `json:"payload"`
	Quote   Quote           `json:"quote"`
}

// ExecuteResult is the response of /execute.
type ExecuteResult struct {
	TxHash string `json:"txHash"`
	Status string `json:"status"`
}

// StepStatus is per-step progress reported by /status.
type StepStatus struct {
	Step   int    `json:"step"`
	Status string `json:"status"`
	TxHash string `json:"txHash,omitempty"`
}

// StatusResult is the response of /status/{txHash}.
type StatusResult struct {
	Status  string `json:"status"`
	Details struct {
		Steps               []StepStatus `json:"steps"`
		EstimatedCompletion string       `json:"estimatedCompletion,omitempty"`
	} `json:"details"`
}

// SmartAccount is a provisioned on-chain account for a user. Provisioning is
// deterministic: the same user always maps to the same address.
type SmartAccount struct {
	Address string `json:"address"`
	ChainId int64  `json:"chainId"`
}

type Client struct {
	baseURL    string
	apiKey     string
	signingKey []byte
	httpClient http.Client
	poll       pollConfig
}

type pollConfig struct {
	interval    time.Duration
	maxInterval time.Duration
	deadline    time.Duration
}

func NewClient(cfg models.ExecutorConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("supertx base URL cannot be empty")
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		signingKey: []byte(cfg.SigningKey),
		httpClient: httpClient,
		poll: pollConfig{
			interval:    cfg.PollInterval,
			maxInterval: cfg.PollMaxInterval,
			deadline:    cfg.PollDeadline,
		},
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// Compose asks the API to build a signable payload for the intent.
func (c *Client) Compose(ctx context.Context, intent Intent) (*ComposeResult, error) {
	var result ComposeResult
	if err := c.post(ctx, "/compose", intent, &result); err != nil {
		return nil, err
	}

	zap.L().Info("Supertransaction composed",
		zap.Int64("chain_id", intent.ChainId),
		zap.Int("steps", len(intent.Steps)),
		zap.String("gas_cost", result.Quote.GasCost),
		zap.String("estimated_time", result.Quote.EstimatedTime))
	return &result, nil
}

// Execute submits the signed payload for on-chain execution.
func (c *Client) Execute(ctx context.Context, payload json.RawMessage, signature string) (*ExecuteResult, error) {
	body := struct {
		Payload   json.RawMessage `json:"payload"`
		Signature string          `json:"signature"`
	}{Payload: payload, Signature: signature}

	var result ExecuteResult
	if err := c.post(ctx, "/execute", body, &result); err != nil {
		return nil, err
	}

	zap.L().Info("Supertransaction executed",
		zap.String("tx_hash", result.TxHash),
		zap.String("status", result.Status))
	return &result, nil
}

// Status fetches current per-step status for a submitted transaction.
func (c *Client) Status(ctx context.Context, txHash string) (*StatusResult, error) {
	var result StatusResult
	if err := c.get(ctx, "/status/"+txHash, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProvisionSmartAccount obtains the deterministic smart-account address for
// a user, creating it on first call.
func (c *Client) ProvisionSmartAccount(ctx context.Context, userId string) (*SmartAccount, error) {
	body := struct {
		UserId string `json:"userId"`
	}{UserId: userId}

	var account SmartAccount
	if err := c.post(ctx, "/accounts", body, &account); err != nil {
		return nil, err
	}

	zap.L().Info("Smart account provisioned",
		zap.String("user_id", userId),
		zap.String("address", account.Address),
		zap.Int64("chain_id", account.ChainId))
	return &account, nil
}

// Sign produces the operator signature for a composed payload. Key custody
// and the signature scheme are owned by the external service; this is an
// opaque credential derived from the configured signing key.
func (c *Client) Sign(payload json.RawMessage) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env errorEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Code == "" {
			return &APIError{Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: string(data)}
		}
		return env.toError()
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
