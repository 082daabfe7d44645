// Package client is a Go client for the syncbridge HTTP API.
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
	"strings"
	"time"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// Result types shared with the server.
type (
	Filters           = types.Filters
	ImportListOptions = types.ImportListOptions
	ImportListReport  = types.ImportListReport
	ImportResult      = types.ImportResult
	ExportResult      = types.ExportResult
	OperationState    = types.OperationState
	Operation         = types.Operation
)

// Operations accepted by the state endpoints.
const (
	OperationImportList   = types.OperationImportList
	OperationImportEntity = types.OperationImportEntity
	OperationExportEntity = types.OperationExportEntity
)

// Health is the health endpoint response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Syncs   int    `json:"syncs"`
}

// Sync summarizes one synchronization definition.
type Sync struct {
	ID         string      `json:"id"`
	Label      string      `json:"label,omitempty"`
	EntityType string      `json:"entity_type"`
	Bundle     string      `json:"bundle,omitempty"`
	Client     string      `json:"client"`
	Operations []Operation `json:"operations"`
}

// FieldError names a field that failed to map.
type FieldError struct {
	Field   string `json:"field"`
	Remote  string `json:"remote,omitempty"`
	Message string `json:"message"`
}

// ProblemError is an RFC 7807 problem returned by the server.
type ProblemError struct {
	Type   string       `json:"type"`
	Title  string       `json:"title"`
	Status int          `json:"status"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (e *ProblemError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("syncbridge: %d %s", e.Status, e.Title)
	}
	return fmt.Sprintf("syncbridge: %d %s: %s", e.Status, e.Title, e.Detail)
}

// IsNotFound reports whether err is a 404 problem.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a 409 problem, returned when an operation
// was cancelled, usually because it is locked by another run.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, status int) bool {
	var p *ProblemError
	return errors.As(err, &p) && p.Status == status
}

// Config holds the client configuration.
type Config struct {
	BaseURL string        // Server URL, e.g. http://localhost:8080
	APIKey  string        // Bearer token
	Timeout time.Duration // Request timeout (default: 5 minutes)
}

// Client calls the syncbridge HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// Health checks server health. It does not need an API key.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListSyncs returns every loaded synchronization definition.
func (c *Client) ListSyncs(ctx context.Context) ([]Sync, error) {
	var out []Sync
	if err := c.do(ctx, http.MethodGet, "/api/v1/syncs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportList imports the remote entities matching filters.
func (c *Client) ImportList(ctx context.Context, syncID string, filters Filters, opts ImportListOptions) (*ImportListReport, error) {
	body := struct {
		Filters Filters           `json:"filters"`
		Options ImportListOptions `json:"options"`
	}{filters, opts}
	var report ImportListReport
	if err := c.do(ctx, http.MethodPost, syncPath(syncID, "import"), body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ImportEntity imports one remote entity by ID.
func (c *Client) ImportEntity(ctx context.Context, syncID, remoteID string) (*ImportResult, error) {
	var res ImportResult
	if err := c.do(ctx, http.MethodPost, syncPath(syncID, "import", remoteID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Export exports one local entity. opContext is handed to lifecycle handlers.
func (c *Client) Export(ctx context.Context, syncID, entityID string, opContext map[string]any) (*ExportResult, error) {
	body := struct {
		Context map[string]any `json:"context,omitempty"`
	}{opContext}
	var res ExportResult
	if err := c.do(ctx, http.MethodPost, syncPath(syncID, "export", entityID), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// State returns the persisted state of an operation.
func (c *Client) State(ctx context.Context, syncID string, op Operation) (*OperationState, error) {
	var st OperationState
	if err := c.do(ctx, http.MethodGet, syncPath(syncID, "state", string(op)), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Unlock releases a stale operation lock.
func (c *Client) Unlock(ctx context.Context, syncID string, op Operation) error {
	return c.do(ctx, http.MethodDelete, syncPath(syncID, "state", string(op), "lock"), nil, nil)
}

// ResetRuns forgets the recorded runs of an operation, so the next managed
// import starts from the fallback start time again.
func (c *Client) ResetRuns(ctx context.Context, syncID string, op Operation) error {
	return c.do(ctx, http.MethodDelete, syncPath(syncID, "state", string(op), "last-run"), nil, nil)
}

func syncPath(syncID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/v1/syncs/")
	b.WriteString(url.PathEscape(syncID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do sends an authenticated JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p := &ProblemError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if len(data) > 0 {
			_ = json.Unmarshal(data, p)
		}
		p.Status = resp.StatusCode
		return p
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
