// Package http is the JSON client the CLI uses to reach a running riskctl
// server.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	maxErrorBody     = 4 << 10
	clientAgent      = "riskctl"
)

var (
	reqTransport = &http.Transport{
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client talks JSON to a server rooted at BaseURL.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   time.Duration(timeoutInSeconds) * time.Second,
			Transport: reqTransport,
		},
	}
}

// GetJSON retrieves path and decodes the response into target.
func GetJSON[T any](ctx context.Context, c *Client, path string, target *T) error {
	return c.do(ctx, http.MethodGet, path, nil, target)
}

// PostJSON sends body as JSON to path and decodes the response into target.
func PostJSON[T any](ctx context.Context, c *Client, path string, body any, target *T) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "error encoding request body")
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), target)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "error creating HTTP %s request", method)
	}
	req.Header.Set("User-Agent", clientAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "error calling %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrap(err, "error decoding content")
	}
	return nil
}
