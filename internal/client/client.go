// Package client talks to a running crisp server on behalf of the CLI.
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
	"os"
	"strings"
	"time"

	"github.com/lazypower/crisp/internal/engagement"
)

const (
	defaultServerURL = "http://127.0.0.1:38888"
	httpTimeout      = 5 * time.Second
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status    int
	Code      string `json:"error"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Client talks to the crisp server.
type Client struct {
	http      *http.Client
	serverURL string
	token     string
}

// New creates a client for serverURL. An empty serverURL respects CRISP_URL
// and falls back to http://127.0.0.1:38888. token is sent as a bearer
// credential when set.
func New(serverURL, token string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("CRISP_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
		token:     token,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			// Not one of our error bodies, e.g. a proxy page.
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return data, apiErr
	}
	return data, nil
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Get(ctx, "/api/health")
	return err == nil
}

// CreateItem stores item on the server and returns the stored copy.
func (c *Client) CreateItem(ctx context.Context, item engagement.ContentItem) (*engagement.ContentItem, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	data, err := c.Post(ctx, "/api/items", body)
	if err != nil {
		return nil, err
	}
	return decodeItem(data)
}

// ImportItem stores an item in the legacy label shape and returns the
// reconciled copy.
func (c *Client) ImportItem(ctx context.Context, li engagement.LegacyItem) (*engagement.ContentItem, error) {
	body, err := json.Marshal(li)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	data, err := c.Post(ctx, "/api/items/import", body)
	if err != nil {
		return nil, err
	}
	return decodeItem(data)
}

// GetItem fetches an item with crispness as of now.
func (c *Client) GetItem(ctx context.Context, id string) (*engagement.ContentItem, error) {
	data, err := c.Get(ctx, "/api/items/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return decodeItem(data)
}

// Apply runs op ("like", "unlike" or "refresh") against a label.
func (c *Client) Apply(ctx context.Context, op string, t engagement.Target) (*engagement.ContentItem, error) {
	path := fmt.Sprintf("/api/items/%s/labels/%s/%s", url.PathEscape(t.ItemID), url.PathEscape(t.Label), op)
	if t.AnswerID != "" {
		path += "?answer_id=" + url.QueryEscape(t.AnswerID)
	}
	data, err := c.Post(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeItem(data)
}

// Quota is the caller's refresh allowance.
type Quota struct {
	UserID    string `json:"user_id"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at,omitempty"`
}

// Quota reports the authenticated user's remaining refreshes.
func (c *Client) Quota(ctx context.Context) (*Quota, error) {
	data, err := c.Get(ctx, "/api/quota")
	if err != nil {
		return nil, err
	}
	var q Quota
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	return &q, nil
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func decodeItem(data []byte) (*engagement.ContentItem, error) {
	var item engagement.ContentItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}
