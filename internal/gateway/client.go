package gateway

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
)

// Client talks to a remote Server.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ Gateway     = (*Client)(nil)
	_ ActiveStore = (*Client)(nil)
)

// NewClient creates a client for the server at baseURL. A nil httpClient
// gets a default one with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			if resp.StatusCode == http.StatusBadRequest {
				return fmt.Errorf("%w: %s", ErrInvalid, e.Detail)
			}
			return fmt.Errorf("layout server: %s (status %d)", e.Detail, resp.StatusCode)
		}
		return fmt.Errorf("layout server: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) Save(ctx context.Context, snap Snapshot) error {
	snap, err := prepare(snap)
	if err != nil {
		return err
	}
	var resp layoutResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("/api/workspace/layout", nil), snap, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("save layout: %s", resp.Message)
	}
	return nil
}

func (c *Client) Load(ctx context.Context, scopeRef, name string) (Snapshot, error) {
	params := url.Values{"scopeRef": {scopeRef}, "layoutName": {LayoutName(name)}}
	var resp layoutResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("/api/workspace/layout", params), nil, &resp); err != nil {
		return Snapshot{}, err
	}
	if !resp.Success || resp.Snapshot == nil {
		return Snapshot{}, ErrNotFound
	}
	return *resp.Snapshot, nil
}

func (c *Client) Delete(ctx context.Context, scopeRef, name string) error {
	params := url.Values{"scopeRef": {scopeRef}, "layoutName": {LayoutName(name)}}
	return c.do(ctx, http.MethodDelete, c.endpoint("/api/workspace/layout", params), nil, nil)
}

func (c *Client) List(ctx context.Context, scopeRef string) ([]Summary, error) {
	params := url.Values{"scopeRef": {scopeRef}}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("/api/workspace/layouts/list", params), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Summaries != nil {
		return sortSummaries(resp.Summaries), nil
	}
	out := make([]Summary, len(resp.Layouts))
	for i, n := range resp.Layouts {
		out[i] = Summary{LayoutName: n}
	}
	return sortSummaries(out), nil
}

func (c *Client) SetActive(ctx context.Context, scopeRef, name string) error {
	req := activeRequest{ScopeRef: scopeRef, LayoutName: LayoutName(name)}
	return c.do(ctx, http.MethodPut, c.endpoint("/api/workspace/layouts/active", nil), req, nil)
}

func (c *Client) Active(ctx context.Context, scopeRef string) (string, error) {
	var resp activeResponse
	params := url.Values{"scopeRef": {scopeRef}}
	if err := c.do(ctx, http.MethodGet, c.endpoint("/api/workspace/layouts/active", params), nil, &resp); err != nil {
		return "", err
	}
	return resp.LayoutName, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
