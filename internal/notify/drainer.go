package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// EventSource is the queue side the drainer consumes. Drain blocks until an
// event is available.
type EventSource interface {
	Drain(ctx context.Context) (domain.Event, error)
}

// Drainer pumps events from the notification queue into the Notifier. One
// drainer goroutine serves all senders; a slow sender back-pressures the
// queue rather than dropping silently.
type Drainer struct {
	source   EventSource
	notifier *Notifier
	logger   *slog.Logger
}

// NewDrainer creates a Drainer consuming source and delivering via notifier.
func NewDrainer(source EventSource, notifier *Notifier, logger *slog.Logger) *Drainer {
	return &Drainer{
		source:   source,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "drainer")),
	}
}

// Run consumes events until ctx is cancelled or the queue closes. A closed
// queue is a normal shutdown, not an error.
func (d *Drainer) Run(ctx context.Context) error {
	d.logger.Info("drainer started")
	defer d.logger.Info("drainer stopped")

	for {
		ev, err := d.source.Drain(ctx)
		switch {
		case errors.Is(err, domain.ErrQueueClosed):
			return nil
		case err != nil:
			return err
		}

		title, body := FormatEvent(ev)
		if err := d.notifier.Notify(ctx, ev.Kind, title, body); err != nil {
			d.logger.Warn("deliver event",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// FormatEvent renders an event as a notification title and body.
func FormatEvent(ev domain.Event) (title, body string) {
	switch ev.Kind {
	case domain.EventOpportunity:
		op := ev.Opportunity
		if op == nil {
			return "Opportunity", ev.Detail
		}
		title = fmt.Sprintf("Opportunity: %s", op.Listing.Title)
		var b strings.Builder
		fmt.Fprintf(&b, "Game: %s | Level: %s\n", op.Game, op.Level)
		fmt.Fprintf(&b, "Buy: %s  Sell (net): %s\n", formatUSD(op.Listing.Price), formatUSD(op.NetSellPrice))
		fmt.Fprintf(&b, "Profit: %s (%.1f%%)\n", formatUSD(op.Profit), op.ProfitPercent)
		fmt.Fprintf(&b, "Item: %s", op.Listing.ItemID)
		return title, b.String()
	case domain.EventTradeFilled:
		return "Trade filled", ev.Detail
	case domain.EventTradeFailed:
		return "Trade failed", ev.Detail
	case domain.EventDegraded:
		return fmt.Sprintf("Degraded: %s", ev.Game), ev.Detail
	default:
		return string(ev.Kind), ev.Detail
	}
}

// formatUSD renders integer minor units as dollars without going through
// floating point.
func formatUSD(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}
