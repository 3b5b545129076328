package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// State is the lifecycle state of a scanner.
type State string

const (
	StateStarting  State = "starting"
	StateScanning  State = "scanning"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// CatalogSource supplies catalog pages. Satisfied by the dmarket client.
type CatalogSource interface {
	ListCatalog(ctx context.Context, game domain.Game, filters domain.ListingFilters, cursor string) (domain.CatalogPage, error)
}

// PriceSource supplies per-title aggregated best bid/ask snapshots, used to
// estimate the achievable sell price instead of a single listing's
// suggested price. Satisfied by the dmarket client; may be nil.
type PriceSource interface {
	GetAggregatedPrices(ctx context.Context, game domain.Game, titles []string) ([]domain.AggregatedPriceSnapshot, error)
}

// ReferenceSource is the secondary marketplace used as a sanity bound on
// detected opportunities. Satisfied by the steammarket client; may be nil.
type ReferenceSource interface {
	GetPriceReference(ctx context.Context, game domain.Game, title string) (domain.PriceReference, error)
}

// EventSink receives detected opportunities and lifecycle events. Satisfied
// by the notification queue.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

const scanTypeCatalog = "catalog"

// errEmptyPageBudget signals that a pass saw too many consecutive empty
// pages with a live cursor, which reads as upstream trouble rather than a
// quiet market.
var errEmptyPageBudget = errors.New("scanner: empty page budget exhausted")

// Config controls one per-game scanner.
type Config struct {
	Game  domain.Game
	Level domain.ScanLevel
	// Policy holds the thresholds for Level. Zero value falls back to
	// DefaultPolicies.
	Policy domain.LevelPolicy
	// CommissionRate is the marketplace sale commission, e.g. 0.07.
	CommissionRate float64
	// Owner partitions checkpoints between processes.
	Owner           string
	PageLimit       int
	CheckpointEvery int
	// EmptyPageBudget is how many consecutive empty-but-cursored pages a
	// pass tolerates before pausing.
	EmptyPageBudget int

	WindowSize    int
	BaseInterval  time.Duration
	MinInterval   time.Duration
	MaxInterval   time.Duration
	RecoveryFloor time.Duration
}

func (c Config) withDefaults() Config {
	if c.Policy == (domain.LevelPolicy{}) {
		c.Policy = PolicyFor(DefaultPolicies(), c.Level)
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 100
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 100
	}
	if c.EmptyPageBudget <= 0 {
		c.EmptyPageBudget = 3
	}
	if c.Owner == "" {
		c.Owner = "default"
	}
	return c
}

// Scanner sweeps one game's catalog in repeated passes, emitting
// opportunities and checkpointing progress as it goes. Failures in one
// scanner never affect another; each owns its state and window.
type Scanner struct {
	cfg         Config
	source      CatalogSource
	prices      PriceSource
	reference   ReferenceSource
	checkpoints domain.CheckpointStore
	sink        EventSink
	logger      *slog.Logger
	window      *volatilityWindow

	mu           sync.Mutex
	state        State
	lastDetected time.Time

	pollingOnly atomic.Bool

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	newScanID func() string
}

// New creates a Scanner. The sink receives opportunity and degradation
// events; the checkpoint store carries progress across restarts. prices and
// reference are optional: without them detection falls back to each
// listing's suggested price, unbounded.
func New(cfg Config, source CatalogSource, prices PriceSource, reference ReferenceSource, checkpoints domain.CheckpointStore, sink EventSink, logger *slog.Logger) *Scanner {
	cfg = cfg.withDefaults()
	return &Scanner{
		cfg:         cfg,
		source:      source,
		prices:      prices,
		reference:   reference,
		checkpoints: checkpoints,
		sink:        sink,
		logger: logger.With(
			slog.String("component", "scanner"),
			slog.String("game", string(cfg.Game)),
			slog.String("level", cfg.Level.String()),
		),
		window: newVolatilityWindow(cfg.WindowSize,
			cfg.BaseInterval, cfg.MinInterval, cfg.MaxInterval, cfg.RecoveryFloor),
		state: StateStarting,
		now:   time.Now,
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
		newScanID: uuid.NewString,
	}
}

// State returns the scanner's current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// DisableFeed switches the scanner to polling-only mode. One-way: once the
// real-time feed gives up, only a restart brings it back.
func (s *Scanner) DisableFeed() {
	if s.pollingOnly.CompareAndSwap(false, true) {
		s.logger.Warn("real-time feed disabled, polling only")
	}
}

// PollingOnly reports whether the real-time feed has been disabled.
func (s *Scanner) PollingOnly() bool {
	return s.pollingOnly.Load()
}

// HandleListing evaluates a single listing pushed from the real-time feed,
// outside the polling pass.
func (s *Scanner) HandleListing(ctx context.Context, l domain.Listing) {
	if op, ok := s.detect(l, l.SuggestedPrice); ok {
		s.publishOpportunity(ctx, op)
	}
}

// Run executes scan passes until ctx is cancelled, sleeping the adaptive
// delay between passes. A failed pass waits the recovery floor and starts
// over; the error never escapes to the caller before cancellation.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		err := s.runPass(ctx)
		switch {
		case err == nil:
			// delay set below
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, domain.ErrCircuitOpen):
			s.setState(StatePaused)
			s.logger.Warn("pass paused, upstream circuit open")
			s.window.observeEmpty()
		case errors.Is(err, errEmptyPageBudget):
			s.setState(StatePaused)
			s.logger.Warn("pass paused, repeated empty pages")
			s.window.observeEmpty()
		default:
			s.setState(StateFailed)
			s.logger.Error("pass failed", slog.String("error", err.Error()))
			s.window.observeEmpty()
			s.publish(ctx, domain.Event{
				Kind:   domain.EventDegraded,
				Game:   s.cfg.Game,
				Detail: err.Error(),
				At:     s.now(),
			})
		}

		delay := s.window.nextDelay()
		s.logger.Debug("pass done", slog.Duration("next_in", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// runPass runs one full catalog sweep, resuming an active checkpoint when
// one exists.
func (s *Scanner) runPass(ctx context.Context) error {
	s.setState(StateStarting)

	cp, err := s.resumeOrCreate(ctx)
	if err != nil {
		return err
	}

	s.setState(StateScanning)

	filters := domain.ListingFilters{
		PriceFrom: s.cfg.Policy.PriceFrom,
		PriceTo:   s.cfg.Policy.PriceTo,
		Limit:     s.cfg.PageLimit,
	}

	cursor := cp.Cursor
	processed := cp.ProcessedCount
	lastSaved := processed
	var priceSum, priceCount, totalEstimate int64
	emptyPages := 0

	for {
		page, err := s.source.ListCatalog(ctx, s.cfg.Game, filters, cursor)
		if err != nil {
			s.persistProgress(cp.ScanID, cursor, processed, totalEstimate)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failErr := s.checkpoints.Fail(ctx, cp.ScanID, err.Error()); failErr != nil {
				s.logger.Error("mark checkpoint failed", slog.String("error", failErr.Error()))
			}
			return fmt.Errorf("scanner: list catalog %s: %w", s.cfg.Game, err)
		}
		if page.Total > 0 && page.Total != totalEstimate {
			totalEstimate = page.Total
			s.logger.Debug("catalog size estimate", slog.Int64("total", totalEstimate))
		}

		sellByTitle := s.aggregatedSell(ctx, page.Listings)
		for _, l := range page.Listings {
			if op, ok := s.detect(l, sellEstimate(l, sellByTitle)); ok && s.withinReference(ctx, op) {
				s.publishOpportunity(ctx, op)
			}
			priceSum += l.Price
			priceCount++
		}
		processed += int64(len(page.Listings))
		cursor = page.Cursor

		if len(page.Listings) == 0 && cursor != "" {
			emptyPages++
			if emptyPages >= s.cfg.EmptyPageBudget {
				s.persistProgress(cp.ScanID, cursor, processed, totalEstimate)
				return errEmptyPageBudget
			}
		} else {
			emptyPages = 0
		}

		if processed-lastSaved >= int64(s.cfg.CheckpointEvery) {
			if err := s.checkpoints.Save(ctx, cp.ScanID, cursor, processed, totalEstimate); err != nil {
				s.logger.Error("save checkpoint", slog.String("error", err.Error()))
			} else {
				lastSaved = processed
			}
		}

		if cursor == "" {
			break
		}
	}

	if err := s.checkpoints.Complete(ctx, cp.ScanID); err != nil {
		s.logger.Error("complete checkpoint", slog.String("error", err.Error()))
	}
	s.setState(StateCompleted)

	if priceCount == 0 {
		s.window.observeEmpty()
	} else {
		s.window.observe(float64(priceSum)/float64(priceCount), int(priceCount), s.now())
	}
	return nil
}

// resumeOrCreate loads the newest active checkpoint for this game and
// level, creating a fresh one when none exists.
func (s *Scanner) resumeOrCreate(ctx context.Context) (domain.ScanCheckpoint, error) {
	active, err := s.checkpoints.LoadActive(ctx, s.cfg.Owner, scanTypeCatalog)
	if err != nil {
		return domain.ScanCheckpoint{}, fmt.Errorf("scanner: load checkpoints: %w", err)
	}
	for i := len(active) - 1; i >= 0; i-- {
		cp := active[i]
		if cp.Game == s.cfg.Game && cp.Level == s.cfg.Level {
			s.logger.Info("resuming scan",
				slog.String("scan_id", cp.ScanID),
				slog.String("cursor", cp.Cursor),
				slog.Int64("processed", cp.ProcessedCount))
			return cp, nil
		}
	}

	cp := domain.ScanCheckpoint{
		ScanID:   s.newScanID(),
		Owner:    s.cfg.Owner,
		ScanType: scanTypeCatalog,
		Game:     s.cfg.Game,
		Level:    s.cfg.Level,
		Status:   domain.CheckpointInProgress,
	}
	if err := s.checkpoints.Create(ctx, cp); err != nil {
		return domain.ScanCheckpoint{}, fmt.Errorf("scanner: create checkpoint: %w", err)
	}
	return cp, nil
}

// persistProgress saves the current cursor on a background context so that
// shutdown mid-pass does not lose progress.
func (s *Scanner) persistProgress(scanID, cursor string, processed, totalEstimate int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 5*time.Second)
	defer cancel()
	if err := s.checkpoints.Save(ctx, scanID, cursor, processed, totalEstimate); err != nil &&
		!errors.Is(err, domain.ErrCheckpointRegressed) {
		s.logger.Error("persist progress", slog.String("error", err.Error()))
	}
}

// aggregatedSell fetches best-bid snapshots for a page's titles. Any
// failure degrades to suggested prices instead of failing the pass.
func (s *Scanner) aggregatedSell(ctx context.Context, listings []domain.Listing) map[string]int64 {
	if s.prices == nil || len(listings) == 0 {
		return nil
	}
	titles := make([]string, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		if l.Title == "" {
			continue
		}
		if _, dup := seen[l.Title]; dup {
			continue
		}
		seen[l.Title] = struct{}{}
		titles = append(titles, l.Title)
	}
	snaps, err := s.prices.GetAggregatedPrices(ctx, s.cfg.Game, titles)
	if err != nil {
		s.logger.Warn("aggregated prices unavailable, using suggested prices",
			slog.String("error", err.Error()))
		return nil
	}
	out := make(map[string]int64, len(snaps))
	for _, snap := range snaps {
		if snap.BestBid > 0 {
			out[snap.Title] = snap.BestBid
		}
	}
	return out
}

// sellEstimate picks the achievable sell price for a listing: the
// aggregated best bid when one is known, the listing's own suggested price
// otherwise.
func sellEstimate(l domain.Listing, byTitle map[string]int64) int64 {
	if p, ok := byTitle[l.Title]; ok {
		return p
	}
	return l.SuggestedPrice
}

// referenceSanityMultiple bounds how far a sell estimate may sit above the
// secondary source's lowest listed price before the estimate is treated as
// stale data.
const referenceSanityMultiple = 2.0

// withinReference checks a detected opportunity against the secondary
// price source. An unreachable reference never blocks an opportunity.
func (s *Scanner) withinReference(ctx context.Context, op domain.Opportunity) bool {
	if s.reference == nil || op.Listing.Title == "" {
		return true
	}
	ref, err := s.reference.GetPriceReference(ctx, s.cfg.Game, op.Listing.Title)
	if err != nil {
		s.logger.Debug("reference price unavailable",
			slog.String("title", op.Listing.Title),
			slog.String("error", err.Error()))
		return true
	}
	if ref.LowestPrice > 0 && float64(op.NetSellPrice) > float64(ref.LowestPrice)*referenceSanityMultiple {
		s.logger.Info("opportunity rejected, sell estimate out of line with reference",
			slog.String("title", op.Listing.Title),
			slog.Int64("net_sell", op.NetSellPrice),
			slog.Int64("reference_lowest", ref.LowestPrice))
		return false
	}
	return true
}

// detect evaluates one listing against the level policy, given the sell
// price the caller believes achievable. The sell estimate net of commission
// floors toward zero, so profit is never overstated.
func (s *Scanner) detect(l domain.Listing, sellPrice int64) (domain.Opportunity, bool) {
	if l.Price <= 0 || sellPrice <= 0 {
		return domain.Opportunity{}, false
	}
	netSell := int64(float64(sellPrice) * (1 - s.cfg.CommissionRate))
	profit := netSell - l.Price
	if profit < 0 {
		return domain.Opportunity{}, false
	}
	pct := float64(profit) / float64(l.Price) * 100
	if pct < s.cfg.Policy.MinProfitPercent || !s.cfg.Policy.Contains(l.Price) {
		return domain.Opportunity{}, false
	}
	return domain.Opportunity{
		Listing:       l,
		SellPrice:     sellPrice,
		NetSellPrice:  netSell,
		Profit:        profit,
		ProfitPercent: pct,
		Game:          s.cfg.Game,
		Level:         s.cfg.Level,
		DetectedAt:    s.detectedAt(),
	}, true
}

// detectedAt returns a strictly increasing timestamp even when detections
// land within the clock's resolution.
func (s *Scanner) detectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	if !at.After(s.lastDetected) {
		at = s.lastDetected.Add(time.Nanosecond)
	}
	s.lastDetected = at
	return at
}

func (s *Scanner) publish(ctx context.Context, ev domain.Event) {
	if err := s.sink.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("publish event", slog.String("error", err.Error()))
	}
}

func (s *Scanner) publishOpportunity(ctx context.Context, op domain.Opportunity) {
	s.publish(ctx, domain.Event{
		Kind:        domain.EventOpportunity,
		Game:        op.Game,
		Opportunity: &op,
		At:          op.DetectedAt,
	})
}
