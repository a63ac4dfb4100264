// Package client is a typed HTTP client for the HerderHub payments API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/herderhub/herderhub-api/internal/api/httpx"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/services"
)

// Error is a non-2xx API response. Message is the server's public message.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	base  string
	token string
	http  *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/") + "/api/v1",
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Initiate(ctx context.Context, req services.InitiateRequest) (services.InitiateResult, error) {
	var out services.InitiateResult
	err := c.do(ctx, http.MethodPost, "/mpesa/stkpush", req, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, checkoutRequestID string) (models.PaymentStatus, error) {
	var out models.PaymentStatus
	err := c.do(ctx, http.MethodGet, "/mpesa/transaction-status/"+url.PathEscape(checkoutRequestID), nil, &out)
	return out, err
}

func (c *Client) Transaction(ctx context.Context, id string) (models.Transaction, error) {
	var out models.Transaction
	err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ReportTimeout marks a still-pending transaction failed because the buyer's
// client gave up waiting. The server ignores it when the record is already
// settled and returns the settled record.
func (c *Client) ReportTimeout(ctx context.Context, transactionID string) (models.Transaction, error) {
	status := models.TxnFailed
	reason := models.ReasonClientTimeout
	desc := "no confirmation received before the client timed out"
	var out models.Transaction
	err := c.do(ctx, http.MethodPatch, "/transactions/"+url.PathEscape(transactionID), services.Patch{
		Status:        &status,
		FailureReason: &reason,
		ResultDesc:    &desc,
	}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var ae httpx.APIError
		_ = json.Unmarshal(raw, &ae)
		if ae.Error == "" {
			ae.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Code: ae.Code, Message: ae.Error, Details: ae.Details}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
