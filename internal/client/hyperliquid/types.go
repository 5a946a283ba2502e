package hyperliquid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse means the upstream answered 2xx but without the
// fields the sync depends on.
var ErrMalformedResponse = errors.New("malformed response")

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// RateLimited lets ratelimit.IsRateLimited classify 429 responses.
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// SpotToken is one entry of the spot token universe.
type SpotToken struct {
	Name    string `json:"name"`
	TokenID string `json:"tokenId"`
	Index   int    `json:"index"`
}

type spotMetaResponse struct {
	Tokens *[]SpotToken `json:"tokens"`
}

// TokenDetails is the subset of the tokenDetails payload used by the sync.
// Raw keeps the full body as returned.
type TokenDetails struct {
	Name              string   `json:"name"`
	MarkPx            string   `json:"markPx"`
	DeployTime        string   `json:"deployTime"`
	SeededUsdc        string   `json:"seededUsdc"`
	CirculatingSupply string   `json:"circulatingSupply"`
	Airdrop1          Optional `json:"airdrop1"`
	Airdrop2          Optional `json:"airdrop2"`

	Raw json.RawMessage `json:"-"`
}

// Optional is a loosely typed field that may be absent, null, a string or
// any other JSON scalar. Non-string values keep their JSON text.
type Optional struct {
	Value *string
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Value = &s
		return nil
	}
	v := string(data)
	o.Value = &v
	return nil
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

type infoRequest struct {
	Type    string `json:"type"`
	TokenID string `json:"tokenId,omitempty"`
}
