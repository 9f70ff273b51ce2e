package dataservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/logger"
)

// Client reads entities and datasets from the service's HTTP API:
//
//	GET /api/wells/list?projectPath=<scope>  -> {"wells": [...]}
//	GET /api/wells/data?wellPath=<path>      -> {"datasets": [...]} | {"error": "..."}
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a client. A nil httpClient uses http.DefaultClient;
// per-request deadlines come from the caller's context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logger.Global().WithPrefix("dataservice"),
	}
}

type listResponse struct {
	Wells []record `json:"wells"`
	Error string   `json:"error,omitempty"`
}

type dataResponse struct {
	Datasets []Dataset `json:"datasets"`
	Error    string    `json:"error,omitempty"`
}

func (c *Client) Entities(ctx context.Context, scope entity.Scope) ([]entity.Ref, error) {
	var resp listResponse
	u := c.baseURL + "/api/wells/list?" + url.Values{"projectPath": {scope.Path}}.Encode()
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	refs := make([]entity.Ref, 0, len(resp.Wells))
	for _, rec := range resp.Wells {
		ref, ok := rec.canonical(scope)
		if !ok {
			c.log.Warn("skipping entity record without identity")
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (c *Client) Datasets(ctx context.Context, ref entity.Ref) ([]Dataset, error) {
	var resp dataResponse
	u := c.baseURL + "/api/wells/data?" + url.Values{"wellPath": {ref.Path}}.Encode()
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

func (c *Client) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("data service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("data service: %w", err)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return fmt.Errorf("data service returned non-JSON response (status %d)", resp.StatusCode)
	}

	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrEntityNotFound, e.Error)
	case resp.StatusCode >= 300:
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("data service: %s", e.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("data service: decode response: %w", err)
	}
	return nil
}
