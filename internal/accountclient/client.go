// Package accountclient talks to the account service over HTTP and
// implements domain.AccountRepository for the payment service.
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"p2p-ledger/internal/domain"
	"p2p-ledger/internal/errors"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.AccountRepository = (*Client)(nil)

// New returns a client for the account service at baseURL. Every call is
// bounded by timeout; a timeout surfaces as service_unavailable.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *wireError      `json:"error"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (c *Client) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var account domain.Account
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(userID), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) TransferBalance(ctx context.Context, req domain.TransferRequest) (*domain.BalanceTransfer, error) {
	var transfer domain.BalanceTransfer
	if err := c.do(ctx, http.MethodPost, "/transfers", req, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) GetTransfer(ctx context.Context, idempotencyKey string) (*domain.BalanceTransfer, error) {
	var transfer domain.BalanceTransfer
	if err := c.do(ctx, http.MethodGet, "/transfers/"+url.PathEscape(idempotencyKey), nil, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.FromError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.FromError(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Account service call failed",
			"method", method,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return errors.ErrServiceUnavailable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.ErrServiceUnavailable.WithDetails(fmt.Sprintf("status %d", resp.StatusCode))
		}
		return errors.NewAppErrorf(errors.InternalError,
			"unreadable account service response (status %d)", resp.StatusCode).WithDetails(err.Error())
	}

	if env.Error != nil || resp.StatusCode >= http.StatusBadRequest {
		return c.remoteError(resp.StatusCode, env.Error)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.NewAppError(errors.InternalError, "malformed account service payload").WithDetails(err.Error())
	}
	return nil
}

// remoteError rebuilds the account service's error by code. A failure
// inside the account service is reported as service_unavailable to callers.
func (c *Client) remoteError(status int, wire *wireError) error {
	if wire == nil {
		if status >= http.StatusInternalServerError {
			return errors.ErrServiceUnavailable.WithDetails(fmt.Sprintf("status %d", status))
		}
		return errors.NewAppErrorf(errors.InternalError, "account service returned status %d", status)
	}

	code, ok := errors.ParseErrorCode(wire.Code)
	if !ok || code == errors.StorageError || code == errors.InternalError || code == errors.ServiceUnavailable {
		c.logger.Warn("Account service reported a server error", "status", status, "code", wire.Code, "message", wire.Message)
		return errors.ErrServiceUnavailable.WithDetails(wire.Code + ": " + wire.Message)
	}
	return &errors.AppError{Code: code, Message: wire.Message, Details: wire.Details}
}
