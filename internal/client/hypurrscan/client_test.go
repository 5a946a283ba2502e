package hypurrscan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypertoken/internal/ratelimit"
)

func TestPastAuctions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pastAuctionsSpot", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"time":1713262831000,"deployer":"0x0000000000000000000000000000000000000001","name":"PURR","deployGas":"0"},
			{"time":1713350000000,"deployer":"0x0000000000000000000000000000000000000002","name":"HFUN","deployGas":"12.5"}
		]`))
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.DefaultConfig(), ratelimit.WithClock(clockwork.NewFakeClock()))
	c := NewClient(srv.Client(), srv.URL+"/", limiter, 0)
	require.True(t, c.Enabled())

	auctions, err := c.PastAuctions(context.Background())
	require.NoError(t, err)
	require.Len(t, auctions, 2)
	assert.Equal(t, "HFUN", auctions[1].Name)
	assert.EqualValues(t, 1713262831000, auctions[0].Time)
	assert.Equal(t, 0, limiter.Used())
}

func TestPastAuctions_Disabled(t *testing.T) {
	c := NewClient(nil, "", nil, 0)
	assert.False(t, c.Enabled())

	_, err := c.PastAuctions(context.Background())
	require.ErrorIs(t, err, ErrDisabled)
}

func TestPastAuctions_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, nil, 0)
	_, err := c.PastAuctions(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
