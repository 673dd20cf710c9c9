// Package iplookup resolves the agent's public IP address through an ipify-style endpoint.
package iplookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	infraerrors "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/errors"
	infrahttp "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/http"
)

const (
	// DefaultEndpoint returns {"ip": "..."}.
	DefaultEndpoint = "https://api.ipify.org?format=json"

	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 5 * time.Second

	maxBody = 1024
)

// ErrEmptyIP is returned when the endpoint answers without an address.
var ErrEmptyIP = errors.New("ip lookup returned empty address")

// Client performs IP lookups.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client for endpoint. Blank endpoint and zero timeout use the defaults.
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     infrahttp.NewClientWithTimeout(timeout),
	}
}

// Lookup fetches the caller's public IP.
func (c *Client) Lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build ip lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return "", fmt.Errorf("ip lookup: %w", httpErr)
	}

	var payload struct {
		IP string `json:"ip"`
	}
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ip lookup: %w", err)
	}

	ip := strings.TrimSpace(payload.IP)
	if ip == "" {
		return "", ErrEmptyIP
	}
	return ip, nil
}
