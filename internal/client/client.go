// Package client is a Go client for the signer's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ILLUVRSE/stark-signer/internal/auth"
	"github.com/ILLUVRSE/stark-signer/internal/models"
)

var ErrBaseURLRequired = errors.New("signer base url required")

// APIError is a non-2xx reply from the signer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signer returned %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  client,
	}, nil
}

// Sign asks the signer to sign hash, a hex field element.
func (c *Client) Sign(ctx context.Context, hash string) (models.SignResponse, error) {
	var out models.SignResponse
	err := c.do(ctx, http.MethodPost, "/signatures", models.SignRequest{Hash: hash}, &out)
	return out, err
}

// Verify asks the signer whether (r, s) signs hash under its key.
func (c *Client) Verify(ctx context.Context, hash, r, s string) (models.VerifyResponse, error) {
	var out models.VerifyResponse
	err := c.do(ctx, http.MethodPost, "/signatures/verify", models.VerifyRequest{Hash: hash, R: r, S: s}, &out)
	return out, err
}

// Self fetches the signer's public key.
func (c *Client) Self(ctx context.Context) (models.SelfSignerResponse, error) {
	var out models.SelfSignerResponse
	err := c.do(ctx, http.MethodGet, "/signers/self", nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var out models.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("signer marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("signer build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", auth.Scheme+" "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("signer %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("signer decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var payload models.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}
