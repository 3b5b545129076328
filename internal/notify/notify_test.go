package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByKind(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []domain.EventKind{domain.EventTradeFilled}, discardLogger())

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, domain.EventOpportunity, "skip me", ""))
	require.NoError(t, n.Notify(ctx, domain.EventTradeFilled, "keep me", ""))

	assert.Equal(t, []string{"keep me"}, s.titles)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), domain.EventOpportunity, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestFormatOpportunityEvent(t *testing.T) {
	op := domain.Opportunity{
		Listing: domain.Listing{
			ItemID: "it-1",
			Title:  "AK-47 | Redline",
			Price:  1000,
		},
		SellPrice:     1300,
		NetSellPrice:  1209,
		Profit:        209,
		ProfitPercent: 20.9,
		Game:          "a8db",
		Level:         domain.LevelStandard,
	}
	title, body := FormatEvent(domain.Event{Kind: domain.EventOpportunity, Opportunity: &op})

	assert.Equal(t, "Opportunity: AK-47 | Redline", title)
	assert.Contains(t, body, "Buy: $10.00")
	assert.Contains(t, body, "Sell (net): $12.09")
	assert.Contains(t, body, "Profit: $2.09 (20.9%)")
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.05", formatUSD(5))
	assert.Equal(t, "$12.09", formatUSD(1209))
	assert.Equal(t, "-$2.50", formatUSD(-250))
}

type stubSource struct {
	events []domain.Event
	i      int
}

func (s *stubSource) Drain(ctx context.Context) (domain.Event, error) {
	if s.i >= len(s.events) {
		return domain.Event{}, domain.ErrQueueClosed
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func TestDrainerDeliversUntilQueueCloses(t *testing.T) {
	src := &stubSource{events: []domain.Event{
		{Kind: domain.EventTradeFilled, Detail: "t-1 filled", At: time.Now()},
		{Kind: domain.EventDegraded, Game: "a8db", Detail: "circuit open", At: time.Now()},
	}}
	s := &recordingSender{name: "test"}
	d := NewDrainer(src, NewNotifier([]Sender{s}, nil, discardLogger()), discardLogger())

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []string{"Trade filled", "Degraded: a8db"}, s.titles)
}

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok", "chat-1")
	sender.baseURL = srv.URL

	require.NoError(t, sender.Send(context.Background(), "Title", "Body"))
	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "*Title*\nBody", got["text"])
}

func TestTelegramSenderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok", "chat-1")
	sender.baseURL = srv.URL

	err := sender.Send(context.Background(), "Title", "Body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
