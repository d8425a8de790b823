// Package client talks to a beacon server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/timestamp"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("beacon: http %d", e.StatusCode)
	}
	return fmt.Sprintf("beacon: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unavailable reports whether the server could not reach its storage.
func (e *APIError) Unavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Beat(ctx context.Context, serviceID string, details map[string]string) (types.BeatResponse, error) {
	var body io.Reader
	if len(details) > 0 {
		raw, err := json.Marshal(types.BeatRequest{Details: details})
		if err != nil {
			return types.BeatResponse{}, err
		}
		body = bytes.NewReader(raw)
	}

	var out types.BeatResponse
	err := c.do(ctx, http.MethodPost, servicePath(serviceID, "beat"), body, &out)
	return out, err
}

// Status returns the service's last beat. State is derived from the reply:
// the "never" sentinel maps to StateNeverSeen.
func (c *Client) Status(ctx context.Context, serviceID string) (types.StatusResponse, error) {
	var out types.StatusResponse
	if err := c.do(ctx, http.MethodGet, servicePath(serviceID, "status"), nil, &out); err != nil {
		return out, err
	}
	if out.Timestamp == types.NeverSeen {
		out.State = types.StateNeverSeen
		return out, nil
	}
	if _, err := timestamp.Parse(out.Timestamp); err != nil {
		return out, fmt.Errorf("status for %s: %w", serviceID, err)
	}
	out.State = types.StateSeen
	return out, nil
}

// History lists beats newest first. limit 0 asks for every beat; a negative
// limit leaves the choice to the server's default.
func (c *Client) History(ctx context.Context, serviceID string, limit int) (types.HistoryResponse, error) {
	path := servicePath(serviceID, "history")
	if limit >= 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out types.HistoryResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Services(ctx context.Context) (types.ServicesResponse, error) {
	var out types.ServicesResponse
	err := c.do(ctx, http.MethodGet, "/services", nil, &out)
	return out, err
}

func servicePath(serviceID, action string) string {
	return "/services/" + url.PathEscape(serviceID) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
