// Package client talks to a registry daemon over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	nameregistry "github.com/wolfeidau/name-registry"
	"github.com/wolfeidau/name-registry/registry"
	"github.com/wolfeidau/name-registry/server"
	"github.com/wolfeidau/name-registry/telemetry"
	"github.com/wolfeidau/name-registry/transaction"
)

const (
	// DefaultBaseURL is the daemon's default address.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout is the default timeout for JSON requests.
	DefaultTimeout = 30 * time.Second
)

// APIError is a non-2xx response. It unwraps to the matching
// nameregistry sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Unwrap returns the sentinel error for Kind, if any.
func (e *APIError) Unwrap() error {
	return nameregistry.ErrorForKind(e.Kind)
}

// Client is a registry HTTP client.
type Client struct {
	baseURL    string
	adminToken string
	client     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the daemon URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithAdminToken sets the bearer token sent to admin endpoints.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = token
	}
}

// New creates a client. Requests are instrumented with client metrics.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client: &http.Client{
			Transport: telemetry.NewInstrumentedTransport(nil),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends a signed transaction and returns the applied result.
func (c *Client) Submit(ctx context.Context, tx *transaction.Transaction) (*registry.Result, error) {
	var res registry.Result
	err := c.doJSON(ctx, "transactions", http.MethodPost, "/v1/transactions", bytes.NewReader(tx.Marshal()), &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Record fetches the record stored at addr.
func (c *Client) Record(ctx context.Context, addr nameregistry.Address) (*server.RecordResponse, error) {
	var res server.RecordResponse
	if err := c.doJSON(ctx, "records", http.MethodGet, "/v1/records/"+addr.String(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Account fetches the raw ledger account at addr.
func (c *Client) Account(ctx context.Context, addr nameregistry.Address) (*server.AccountResponse, error) {
	var res server.AccountResponse
	if err := c.doJSON(ctx, "accounts", http.MethodGet, "/v1/accounts/"+addr.String(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Snapshot streams a compressed ledger snapshot into w. It has no timeout
// beyond ctx.
func (c *Client) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	ctx = telemetry.WithEndpoint(ctx, "snapshot")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/admin/snapshot", nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading snapshot: %w", err)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(telemetry.WithEndpoint(ctx, endpoint), DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body server.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err != nil || body.Kind == "" {
		return &APIError{Status: resp.StatusCode, Kind: "unknown", Message: strings.TrimSpace(string(data))}
	}
	return &APIError{Status: resp.StatusCode, Kind: body.Kind, Message: body.Error}
}
