// Package hypurrscan reads the past spot deploy auctions listing. The data is
// informational: a sync cycle records how many deploys it saw but never
// depends on them.
package hypurrscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hypertoken/internal/ratelimit"
)

// ErrDisabled is returned when no base URL is configured.
var ErrDisabled = errors.New("hypurrscan disabled")

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// DeployAuction is one finished spot deploy auction.
type DeployAuction struct {
	Time     int64  `json:"time"`
	Deployer string `json:"deployer"`
	Name     string `json:"name"`
}

type Client struct {
	host       string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	weight     int
}

// NewClient builds a client drawing on limiter with the given weight. Weight 0
// shares the concurrency gate without touching the weight budget.
func NewClient(httpClient *http.Client, host string, limiter *ratelimit.Limiter, weight int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		weight:     weight,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.host != ""
}

func (c *Client) PastAuctions(ctx context.Context) ([]DeployAuction, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return ratelimit.Do(ctx, c.limiter, c.weight, func(ctx context.Context) ([]DeployAuction, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/pastAuctionsSpot", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
		var out []DeployAuction
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode pastAuctionsSpot: %w", err)
		}
		return out, nil
	})
}
