// Package hyperliquid reads the spot token universe and per-token details
// from the Hyperliquid info endpoint. Every call is admitted through a shared
// ratelimit.Limiter.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hypertoken/internal/ratelimit"
)

const (
	DefaultHost         = "https://api.hyperliquid.xyz"
	DefaultListWeight   = 20
	DefaultDetailWeight = 20
)

type Client struct {
	host         string
	httpClient   *http.Client
	limiter      *ratelimit.Limiter
	listWeight   int
	detailWeight int
}

type Option func(*Client)

// WithWeights overrides the budget weight charged per call.
func WithWeights(list, detail int) Option {
	return func(c *Client) {
		c.listWeight = list
		c.detailWeight = detail
	}
}

func NewClient(httpClient *http.Client, host string, limiter *ratelimit.Limiter, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		host:         strings.TrimRight(host, "/"),
		httpClient:   httpClient,
		limiter:      limiter,
		listWeight:   DefaultListWeight,
		detailWeight: DefaultDetailWeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTokens returns the spot token universe in upstream order.
func (c *Client) ListTokens(ctx context.Context) ([]SpotToken, error) {
	return ratelimit.Do(ctx, c.limiter, c.listWeight, func(ctx context.Context) ([]SpotToken, error) {
		body, err := c.postInfo(ctx, infoRequest{Type: "spotMeta"})
		if err != nil {
			return nil, err
		}
		var resp spotMetaResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: spotMeta: %v", ErrMalformedResponse, err)
		}
		if resp.Tokens == nil {
			return nil, fmt.Errorf("%w: spotMeta has no tokens", ErrMalformedResponse)
		}
		return *resp.Tokens, nil
	})
}

// TokenDetails fetches one token. A payload without a name is treated as
// a missing token.
func (c *Client) TokenDetails(ctx context.Context, tokenID string) (*TokenDetails, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	return ratelimit.Do(ctx, c.limiter, c.detailWeight, func(ctx context.Context) (*TokenDetails, error) {
		body, err := c.postInfo(ctx, infoRequest{Type: "tokenDetails", TokenID: tokenID})
		if err != nil {
			return nil, err
		}
		var details TokenDetails
		if err := json.Unmarshal(body, &details); err != nil {
			return nil, fmt.Errorf("%w: tokenDetails %s: %v", ErrMalformedResponse, tokenID, err)
		}
		if details.Name == "" {
			return nil, fmt.Errorf("%w: details not found for token %s", ErrMalformedResponse, tokenID)
		}
		details.Raw = json.RawMessage(body)
		return &details, nil
	})
}

func (c *Client) postInfo(ctx context.Context, payload infoRequest) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/info", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
