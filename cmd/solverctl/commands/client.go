package commands

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

	"github.com/tidwall/gjson"
)

// APIError is an error response of the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	TxID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if e.TxID != "" {
		msg += " [tx " + e.TxID + "]"
	}
	return msg
}

// Client calls the solverd HTTP API.
type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// NewClient returns a client for base with a request timeout.
func NewClient(base, token string, timeout time.Duration) *Client {
	return &Client{
		Base:  strings.TrimRight(base, "/"),
		Token: token,
		HTTP:  &http.Client{Timeout: timeout},
	}
}

// Get fetches path with optional query parameters. Empty values are dropped.
func (c *Client) Get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	q := url.Values{}
	for k, v := range query {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Do sends a request with an optional JSON body and returns the response
// body. Non-2xx responses become *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, data)
	}
	return data, nil
}

func parseError(status int, data []byte) error {
	e := gjson.GetBytes(data, "error")
	if !e.Exists() {
		return &APIError{Status: status, Code: http.StatusText(status), Message: strings.TrimSpace(string(data))}
	}
	return &APIError{
		Status:  status,
		Code:    e.Get("code").String(),
		Message: e.Get("message").String(),
		TxID:    e.Get("details.tx_id").String(),
	}
}

// Select applies a gjson path to data. An empty path returns data indented.
func Select(data []byte, path string) (string, error) {
	if path == "" {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return strings.TrimSpace(string(data)), nil
		}
		return out.String(), nil
	}
	r := gjson.GetBytes(data, path)
	if !r.Exists() {
		return "", fmt.Errorf("field %q not present in response", path)
	}
	return r.String(), nil
}
