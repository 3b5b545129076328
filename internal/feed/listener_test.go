package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsServer upgrades each request, reads the subscribe frame, then sends the
// given raw frames before closing.
func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Type != "subscribe" {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListenerDeliversListings(t *testing.T) {
	srv := wsServer(t, []string{
		`{"type":"ping"}`,
		`{"type":"offer_created","payload":{"itemId":"it-1","title":"AK-47 | Redline","gameId":"a8db","price":{"USD":"1050"},"suggestedPrice":{"USD":"1300"}}}`,
	})

	got := make(chan domain.Listing, 1)
	l := New(Config{URL: wsURL(srv), Game: "a8db", MaxAttempts: 1},
		func(_ context.Context, listing domain.Listing) {
			select {
			case got <- listing:
			default:
			}
		},
		nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = l.Run(ctx) }()

	select {
	case listing := <-got:
		assert.Equal(t, "it-1", listing.ItemID)
		assert.Equal(t, int64(1050), listing.Price)
		assert.Equal(t, int64(1300), listing.SuggestedPrice)
	case <-time.After(2 * time.Second):
		t.Fatal("no listing delivered")
	}

	cancel()
	<-done
}

func TestListenerDisablesAfterBoundedAttempts(t *testing.T) {
	// Nothing listens on this address.
	var disabled atomic.Bool
	l := New(Config{
		URL:         "ws://127.0.0.1:1/market",
		Game:        "a8db",
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}, func(context.Context, domain.Listing) {}, func() { disabled.Store(true) }, discardLogger())

	var sleeps int
	l.sleep = func(context.Context, time.Duration) error { sleeps++; return nil }

	err := l.Run(context.Background())
	require.NoError(t, err, "exhaustion is a fallback, not a failure")
	assert.True(t, disabled.Load())
	assert.Equal(t, 2, sleeps, "no backoff after the final attempt")
	assert.Equal(t, StateDisabled, l.State())

	err = l.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedDisabled)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	l := New(Config{
		URL:         "ws://127.0.0.1:1/market",
		Game:        "a8db",
		MaxAttempts: 5,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  25 * time.Millisecond,
	}, func(context.Context, domain.Listing) {}, nil, discardLogger())

	var waits []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		25 * time.Millisecond,
		25 * time.Millisecond,
	}, waits)
}

func TestMalformedFramesAreDroppedNotFatal(t *testing.T) {
	srv := wsServer(t, []string{
		`not json`,
		`{"type":"offer_created","payload":{"itemId":"bad","price":{"USD":"12.34"}}}`,
		`{"type":"offer_created","payload":{"itemId":"it-2","title":"x","gameId":"a8db","price":{"USD":"500"},"suggestedPrice":{"USD":"700"}}}`,
	})

	got := make(chan domain.Listing, 4)
	l := New(Config{URL: wsURL(srv), Game: "a8db", MaxAttempts: 1},
		func(_ context.Context, listing domain.Listing) {
			select {
			case got <- listing:
			default:
			}
		},
		nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	select {
	case listing := <-got:
		assert.Equal(t, "it-2", listing.ItemID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed ones was not delivered")
	}
}

func TestListingDecodeRejectsNonIntegerPrice(t *testing.T) {
	wl := wsListing{ItemID: "it-1", Price: map[string]string{"USD": "10.50"}}
	_, err := wl.toDomain()
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	// A missing currency is a zero price, not an error.
	wl = wsListing{ItemID: "it-2", Price: map[string]string{"EUR": "100"}}
	listing, err := wl.toDomain()
	require.NoError(t, err)
	assert.Zero(t, listing.Price)
}
