// Package rpc is a client for the ledger's /v1/chain HTTP API.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	eos "github.com/eoscanada/eos-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
)

const maxResponseBytes = 32 << 20

// Observer is told how long each call took.
type Observer func(path string, elapsed time.Duration)

// Client talks to one chain API endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	observe    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a callback invoked after every call.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// NewClient creates a client for baseURL, e.g. http://127.0.0.1:8888.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetInfo returns chain id and head block.
func (c *Client) GetInfo(ctx context.Context) (*InfoResponse, error) {
	var out InfoResponse
	if err := c.post(ctx, PathGetInfo, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount looks up an account. An unknown account yields a NotFoundError.
func (c *Client) GetAccount(ctx context.Context, name string) (*AccountResponse, error) {
	var out AccountResponse
	err := c.post(ctx, PathGetAccount, map[string]string{"account_name": name}, &out)
	if err != nil {
		if isUnknownAccount(err) {
			return nil, errors.NewNotFoundError("account", name)
		}
		return nil, err
	}
	return &out, nil
}

// GetABI returns the account's ABI. ABIResponse.ABI is nil when no contract
// is deployed.
func (c *Client) GetABI(ctx context.Context, name string) (*ABIResponse, error) {
	var out ABIResponse
	err := c.post(ctx, PathGetABI, map[string]string{"account_name": name}, &out)
	if err != nil {
		if isUnknownAccount(err) {
			return nil, errors.NewNotFoundError("account", name)
		}
		return nil, err
	}
	return &out, nil
}

// GetBlock fetches a block by number.
func (c *Client) GetBlock(ctx context.Context, num uint32) (*BlockResponse, error) {
	var out BlockResponse
	if err := c.post(ctx, PathGetBlock, map[string]any{"block_num_or_id": num}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTableRows scans a contract table.
func (c *Client) GetTableRows(ctx context.Context, req TableRowsRequest) (*TableRowsResponse, error) {
	if !ValidKeyType(req.KeyType) {
		return nil, errors.NewValidationError("key_type", fmt.Sprintf("unsupported key type %q", req.KeyType), req.KeyType)
	}
	var out TableRowsResponse
	if err := c.post(ctx, PathGetTableRows, req, &out); err != nil {
		return nil, err
	}
	if out.Rows == nil {
		out.Rows = []json.RawMessage{}
	}
	return &out, nil
}

// GetRequiredKeys returns the subset of available keys whose signatures
// satisfy the transaction's declared authorizations.
func (c *Client) GetRequiredKeys(ctx context.Context, tx *eos.Transaction, available []string) ([]string, error) {
	var out RequiredKeysResponse
	req := RequiredKeysRequest{Transaction: NewTransaction(tx), AvailableKeys: available}
	if err := c.post(ctx, PathGetRequiredKeys, req, &out); err != nil {
		return nil, err
	}
	return out.RequiredKeys, nil
}

// PushTransaction submits a signed transaction. A rejection, whether reported
// as an error status or as an exception in the trace, yields a
// SubmissionRejectedError carrying the chain's message verbatim.
func (c *Client) PushTransaction(ctx context.Context, req PushTransactionRequest) (*PushTransactionResponse, error) {
	if req.Signatures == nil {
		req.Signatures = []string{}
	}
	var out PushTransactionResponse
	if err := c.post(ctx, PathPushTransaction, req, &out); err != nil {
		return nil, err
	}

	if len(out.Processed) > 0 {
		var trace processedTrace
		if err := json.Unmarshal(out.Processed, &trace); err == nil && trace.Except != nil {
			return nil, errors.NewSubmissionRejectedError(trace.Except.Message, http.StatusOK).
				WithRemote(trace.Except.Code, trace.Except.Name)
		}
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewValidationError("body", fmt.Sprintf("failed to marshal request: %v", err), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewTransportError(path, 0, errors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if c.observe != nil {
		c.observe(path, elapsed)
	}
	if err != nil {
		c.logger.Debug("chain request failed", zap.String("path", path), zap.Duration("elapsed", elapsed), zap.Error(err))
		return errors.NewTransportError(path, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.NewTransportError(path, resp.StatusCode, errors.Wrap(err, "failed to read response"))
	}
	c.logger.Debug("chain request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewTransportError(path, resp.StatusCode, errors.Wrapf(err, "failed to decode %s response", path))
	}
	return nil
}

// remoteError turns an error reply into a typed error. A reply the chain wrote
// (it carries a reason) is a rejection; anything else is a transport failure.
func remoteError(path string, status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return errors.NewTransportError(path, status, fmt.Errorf("unexpected response: %s", snippet(body)))
	}
	reason := er.reason()
	if reason == "" {
		return errors.NewTransportError(path, status, fmt.Errorf("unexpected response: %s", snippet(body)))
	}
	return errors.NewSubmissionRejectedError(reason, status).WithRemote(er.Error.Code, er.Error.Name)
}

func isUnknownAccount(err error) bool {
	var rejected *errors.SubmissionRejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	return rejected.RemoteName == "unknown_account" ||
		strings.Contains(rejected.Reason, "unknown key") ||
		strings.Contains(rejected.Reason, "unknown account")
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
