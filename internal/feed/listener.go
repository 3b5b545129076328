// Package feed maintains a per-game WebSocket subscription to marketplace
// listing events and pushes updates into the scanner's detection path. The
// feed is strictly an accelerator: when it cannot hold a connection it
// disables itself permanently and tells the scanner to rely on polling
// alone. Polling fallback is one-way; only a process restart re-arms the
// feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// State is the connection lifecycle state of a listener.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateBackingOff State = "backing_off"
	StateDisabled   State = "disabled"
)

// ListingHandler receives each listing update pushed over the feed.
type ListingHandler func(ctx context.Context, l domain.Listing)

// Config controls one per-game listener.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "wss://ws.dmarket.com/market".
	URL  string
	Game domain.Game
	// MaxAttempts bounds consecutive failed connection attempts before the
	// listener disables itself for good.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	return c
}

// Listener holds one game's market-event subscription.
type Listener struct {
	cfg       Config
	handler   ListingHandler
	onDisable func()
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Listener. onDisable fires exactly once if the listener
// exhausts its connection attempts; the caller routes it to the scanner's
// polling fallback.
func New(cfg Config, handler ListingHandler, onDisable func(), logger *slog.Logger) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:       cfg,
		handler:   handler,
		onDisable: onDisable,
		logger: logger.With(
			slog.String("component", "feed"),
			slog.String("game", string(cfg.Game)),
		),
		state: StateConnecting,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// State returns the listener's current connection state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(st State) {
	l.mu.Lock()
	l.state = st
	l.mu.Unlock()
}

// Run connects with exponential backoff and pumps listing events until ctx
// is cancelled or the attempt budget runs out. Exhaustion is not an error:
// the listener signals onDisable and returns nil so sibling goroutines
// keep running. Calling Run again on a disabled listener returns
// domain.ErrFeedDisabled.
func (l *Listener) Run(ctx context.Context) error {
	if l.State() == StateDisabled {
		return domain.ErrFeedDisabled
	}

	attempts := 0
	backoff := l.cfg.BaseBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.setState(StateConnecting)
		connected, err := l.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			// A held connection re-arms the budget.
			attempts = 0
			backoff = l.cfg.BaseBackoff
			l.logger.Warn("feed connection lost", slog.String("error", err.Error()))
			continue
		}

		attempts++
		if attempts >= l.cfg.MaxAttempts {
			l.setState(StateDisabled)
			l.logger.Error("feed disabled after repeated connection failures",
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()))
			if l.onDisable != nil {
				l.onDisable()
			}
			return nil
		}

		l.setState(StateBackingOff)
		l.logger.Warn("feed connect failed, backing off",
			slog.Int("attempt", attempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > l.cfg.MaxBackoff {
			backoff = l.cfg.MaxBackoff
		}
	}
}

// runConnection dials, subscribes, and reads until failure. The first
// return value reports whether a subscription was established; the caller
// charges the attempt budget only when it was not.
func (l *Listener) runConnection(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("feed: dial %s: status %d: %w", l.cfg.URL, resp.StatusCode, err)
		}
		return false, fmt.Errorf("feed: dial %s: %w", l.cfg.URL, err)
	}
	defer conn.Close()

	sub := wsCommand{Type: "subscribe", Topic: "market:" + string(l.cfg.Game)}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("feed: subscribe: %w", err)
	}

	l.setState(StateConnected)
	l.logger.Info("feed subscribed")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx ends so the read loop unblocks, and
	// keep the peer alive with pings meanwhile.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-pingCtx.Done():
				conn.Close()
				return
			case <-t.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := l.dispatch(ctx, data); err != nil {
			l.logger.Debug("feed message dropped",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(data)))
		}
	}
}

// wsCommand is the subscription frame sent after connect.
type wsCommand struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// wsEnvelope wraps every inbound frame.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsListing is the listing shape pushed on offer events. Prices arrive as
// minor-unit strings keyed by currency, same as the REST catalog.
type wsListing struct {
	ItemID         string            `json:"itemId"`
	Title          string            `json:"title"`
	GameID         string            `json:"gameId"`
	Price          map[string]string `json:"price"`
	SuggestedPrice map[string]string `json:"suggestedPrice"`
	Attributes     map[string]string `json:"extra"`
}

func (l *Listener) dispatch(ctx context.Context, data []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("feed: decode envelope: %w", err)
	}

	switch env.Type {
	case "offer_created", "offer_changed":
		var wl wsListing
		if err := json.Unmarshal(env.Payload, &wl); err != nil {
			return fmt.Errorf("feed: decode listing: %w", err)
		}
		listing, err := wl.toDomain()
		if err != nil {
			return err
		}
		l.handler(ctx, listing)
		return nil
	default:
		// Heartbeats, acks, and unknown event types are ignored.
		return nil
	}
}

func (wl wsListing) toDomain() (domain.Listing, error) {
	price, err := usdMinorUnits(wl.Price)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("feed: listing %s price: %w", wl.ItemID, err)
	}
	suggested, err := usdMinorUnits(wl.SuggestedPrice)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("feed: listing %s suggested price: %w", wl.ItemID, err)
	}
	return domain.Listing{
		ItemID:         wl.ItemID,
		Title:          wl.Title,
		Game:           domain.Game(wl.GameID),
		Price:          price,
		SuggestedPrice: suggested,
		Attributes:     wl.Attributes,
	}, nil
}

func usdMinorUnits(m map[string]string) (int64, error) {
	raw, ok := m["USD"]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", raw, domain.ErrSchemaMismatch)
	}
	return v, nil
}
