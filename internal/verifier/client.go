// Package verifier reports a mined transaction to the task verification API.
//
// The API receives the sending address, the task id and the transaction hash
// and answers with a JSON object whose "msg" field tells whether the task was
// accepted:
//
//	POST /task/verify
//	{"address": "0xf39F...", "task_id": 103, "tx_hash": "0xabc..."}
//
//	{"code": 0, "msg": "task verified successfully"}
//
// Any other message, a non-2xx status or an unparsable body means the task was
// not verified. The client never retries.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	DefaultURL    = "https://api.pharosnetwork.xyz/task/verify"
	DefaultTaskID = 103

	// SuccessMessage is the only response message treated as verified.
	SuccessMessage = "task verified successfully"

	maxBodySize = 1 << 20
)

var ErrMalformedResponse = errors.New("malformed verification response")

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("verification endpoint returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	URL     string
	TaskID  int64
	Timeout time.Duration
	// Headers are sent with every request, on top of the JSON content headers.
	Headers map[string]string
	// AuthToken, when set, is sent as a bearer token.
	AuthToken string
}

func DefaultConfig() *Config {
	return &Config{
		URL:     DefaultURL,
		TaskID:  DefaultTaskID,
		Timeout: 30 * time.Second,
		Headers: map[string]string{},
	}
}

type Request struct {
	Address string `json:"address"`
	TaskID  int64  `json:"task_id"`
	TxHash  string `json:"tx_hash"`
}

// Response keeps code undecoded, only msg decides the outcome.
type Response struct {
	Code json.RawMessage `json:"code,omitempty"`
	Msg  *string         `json:"msg"`
}

func (r *Response) Verified() bool {
	return r.Msg != nil && *r.Msg == SuccessMessage
}

type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	config     *Config
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("verification url is required")
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
	}, nil
}

// SetHttpClient replaces the underlying http client.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

// Verify reports txHash for address. A mismatched message returns false with a
// nil error; transport, status and decoding failures return false with the error.
func (c *Client) Verify(ctx context.Context, address common.Address, txHash common.Hash) (bool, error) {
	resp, err := c.Send(ctx, &Request{
		Address: address.Hex(),
		TaskID:  c.config.TaskID,
		TxHash:  txHash.Hex(),
	})
	if err != nil {
		return false, err
	}

	if !resp.Verified() {
		msg := "<missing>"
		if resp.Msg != nil {
			msg = *resp.Msg
		}
		c.logger.Sugar().Warnw("Task not verified", "tx", txHash, "msg", msg)
		return false, nil
	}
	return true, nil
}

// Send posts one verification request and decodes the answer.
func (c *Client) Send(ctx context.Context, request *Request) (*Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", "task-sender")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Sugar().Debugw("Sending verification request",
		"url", c.config.URL,
		"address", request.Address,
		"taskId", request.TaskID,
		"tx", request.TxHash,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Sugar().Debugw("Verification response received",
		"status_code", resp.StatusCode,
		"response", string(body),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}
