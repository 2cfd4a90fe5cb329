// Package clients holds thin REST clients for the collaborating services
// that own document CRUD: the document status API, the document edition
// service, and the flow transfer API. Flow execution never mutates
// documents directly; it calls out through these clients.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rvergara/docflow/pkg/schema"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 * 1024 * 1024 // 1MB
	contentTypeJSON = "application/json"
)

// Config configures a REST client.
type Config struct {
	BaseURL string
	// Token, when set, is sent as a bearer token on every request.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// restClient is the shared plumbing behind the concrete clients.
type restClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newRESTClient(cfg Config) *restClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &restClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  hc,
	}
}

// doJSON sends a JSON request and decodes the JSON response into out (which
// may be nil when the response body is irrelevant).
func (c *restClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeCollaborator, "marshal request body").WithCause(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCollaborator, "build request %s %s", method, path).WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCollaborator, "%s %s failed", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCollaborator, "read response for %s %s", method, path).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return schema.NewErrorf(schema.ErrCodeCollaborator, "%s %s returned %d", method, path, resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": truncate(string(raw), 512)})
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return schema.NewErrorf(schema.ErrCodeCollaborator, "decode response for %s %s", method, path).WithCause(err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
