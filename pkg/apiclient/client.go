// Package apiclient provides a REST client for the nfs4stated admin API.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every request of a client built by New.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a per-request ID that the server echoes into its
// request log.
const RequestIDHeader = "X-Request-Id"

// UserAgent identifies the CLI to the server.
var UserAgent = "nfs4stated-cli"

// Client talks to one nfs4stated server. A zero token sends anonymous
// requests, which only the health and grace status endpoints accept.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates an anonymous client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and decodes a 2xx body into result. Any other status
// becomes an *APIError.
func (c *Client) do(method, path string, body, result any) error {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp.StatusCode, data)
	}
	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeProblem turns an error body into an *APIError. Bodies that are not
// problem documents (a proxy page, http.Error text) become the detail.
func decodeProblem(status int, data []byte) *APIError {
	apiErr := &APIError{}
	if json.Unmarshal(data, apiErr) != nil || apiErr.Title == "" {
		apiErr = &APIError{
			Title:  http.StatusText(status),
			Detail: strings.TrimSpace(string(data)),
		}
	}
	apiErr.StatusCode = status
	return apiErr
}

func (c *Client) get(path string, result any) error {
	return c.do(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body, result any) error {
	return c.do(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string, result any) error {
	return c.do(http.MethodDelete, path, nil, result)
}
