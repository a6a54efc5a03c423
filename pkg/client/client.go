package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested entry or decision does not exist.
var ErrNotFound = errors.New("not found")

// DefaultPageSize is the page size Export requests.
const DefaultPageSize = 500

// Overview is the summary returned by GET /api/v1/ledger.
type Overview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// VerifyResult is the outcome of a server-side verification run.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Position int    `json:"position,omitempty"`
	Entries  int    `json:"entries"`
}

// Entry is a ledger entry as exported by the server. Payload holds the
// exact canonical bytes the hash was computed over.
type Entry struct {
	Position  int             `json:"position"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"previous_hash"`
	Hash      string          `json:"hash"`
}

// Decision is a model decision submitted to or read back from the ledger.
type Decision struct {
	ID           string            `json:"decision_id,omitempty"`
	ModelID      string            `json:"model_id"`
	ModelVersion string            `json:"model_version,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Features     []float64         `json:"features"`
	Output       float64           `json:"output"`
	Outcome      string            `json:"outcome"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DecisionResult pairs a decision with the entry that stores it.
type DecisionResult struct {
	Decision Decision `json:"decision"`
	Entry    Entry    `json:"entry"`
}

// Client talks to an EthosGuard ledger server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a producer token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied first and left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
		return nil
	}
}

// New creates a Client for the server at base.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	)
func New(base string, opts ...Option) (*Client, error) {
	if base == "" {
		return nil, errors.New("server URL is required")
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Overview returns the chain length and current root hash.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.getJSON(ctx, "/api/v1/ledger", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server to verify the whole chain.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.getJSON(ctx, "/api/v1/ledger/verify", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Entry fetches the entry at position.
func (c *Client) Entry(ctx context.Context, position int) (*Entry, error) {
	var out Entry
	if err := c.getJSON(ctx, "/api/v1/ledger/entries/"+strconv.Itoa(position), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Entries fetches up to limit entries starting at from.
func (c *Client) Entries(ctx context.Context, from, limit int) ([]Entry, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	q.Set("limit", strconv.Itoa(limit))

	var out struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.getJSON(ctx, "/api/v1/ledger/entries?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Export pages through the whole chain and returns every entry in order.
func (c *Client) Export(ctx context.Context) ([]Entry, error) {
	var all []Entry
	for {
		page, err := c.Entries(ctx, len(all), DefaultPageSize)
		if err != nil {
			return nil, fmt.Errorf("export from %d: %w", len(all), err)
		}
		all = append(all, page...)
		if len(page) < DefaultPageSize {
			return all, nil
		}
	}
}

// RecordDecision submits d and returns the stored decision and its entry.
func (c *Client) RecordDecision(ctx context.Context, d Decision) (*DecisionResult, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/decisions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out DecisionResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Decision fetches the decision stored at position.
func (c *Client) Decision(ctx context.Context, position int) (*DecisionResult, error) {
	var out DecisionResult
	if err := c.getJSON(ctx, "/api/v1/decisions/"+strconv.Itoa(position), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized: %s", string(body))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
