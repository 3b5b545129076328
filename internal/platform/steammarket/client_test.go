package steammarket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/cache/memory"
	"github.com/alanyoungcy/dmarketbot/internal/domain"
	"github.com/alanyoungcy/dmarketbot/internal/ratelimit"
)

func newTestClient(baseURL string) *Client {
	limiter := ratelimit.NewLimiter(ratelimit.WindowConfig{
		Limit: 1000, Window: time.Minute, MaxWait: time.Minute,
	}, nil)
	return NewClient(
		Config{BaseURL: baseURL, PerMinute: 6000},
		limiter,
		ratelimit.NewBreaker(ratelimit.DefaultBreaker()),
		memory.New(domain.DefaultCacheTTLs()),
		slog.Default(),
	)
}

func TestGetPriceReferenceParsesDisplayPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/priceoverview", r.URL.Path)
		assert.Equal(t, "730", r.URL.Query().Get("appid"))
		assert.Equal(t, "AK-47 | Redline (Field-Tested)", r.URL.Query().Get("market_hash_name"))
		w.Write([]byte(`{"success":true,"lowest_price":"$13.05","volume":"1,234"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ref, err := c.GetPriceReference(context.Background(), "a8db", "AK-47 | Redline (Field-Tested)")
	require.NoError(t, err)

	assert.Equal(t, int64(1305), ref.LowestPrice)
	assert.Equal(t, int64(1234), ref.Volume24h)
}

func TestGetPriceReferenceCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"success":true,"lowest_price":"$1.00","volume":"10"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetPriceReference(context.Background(), "a8db", "item")
	require.NoError(t, err)
	_, err = c.GetPriceReference(context.Background(), "a8db", "item")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetPriceReferenceUnknownTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetPriceReference(context.Background(), "a8db", "no such item")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestGetPriceReferenceUnknownGame(t *testing.T) {
	c := newTestClient("http://unused")
	_, err := c.GetPriceReference(context.Background(), "tf2", "key")
	assert.True(t, errors.Is(err, domain.ErrClient), "got %v", err)
}

func TestParseDisplayPrice(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"$13.05", 1305},
		{"$0.03", 3},
		{"$1,100.50", 110050},
		{"$5", 500},
		{"$2.5", 250},
	}
	for _, tc := range cases {
		got, err := parseDisplayPrice(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseDisplayPrice("")
	assert.Error(t, err)
	_, err = parseDisplayPrice("$1.234")
	assert.Error(t, err)
}
