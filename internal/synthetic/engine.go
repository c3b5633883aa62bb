package synthetic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"BetaBasket/internal/cache"
	"BetaBasket/internal/calculator"
	"BetaBasket/internal/model"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownInstrument is returned when a symbol is absent from the catalog.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrNotSelected is returned when an operation targets a symbol outside the selection set.
	ErrNotSelected = errors.New("instrument not selected")
	// ErrInvalidInterval is returned for a bar interval the exchange does not offer.
	ErrInvalidInterval = errors.New("invalid interval")
)

const (
	DefaultInterval    = "1h"
	DefaultLookback    = 30 * 24 * time.Hour
	DefaultConcurrency = 8
)

// Resolver looks instruments up in the catalog.
type Resolver interface {
	Lookup(ctx context.Context, symbol string) (model.Instrument, bool)
}

// SeriesFetcher loads historical bars. An empty result means "no data".
type SeriesFetcher interface {
	HistoricalSeries(ctx context.Context, symbol, interval string, start, end time.Time) []model.Kline
}

// Engine owns a selection set and the synthetic product derived from it.
// Every mutation triggers a full recomputation; a pass superseded by a newer
// mutation is discarded instead of published.
type Engine struct {
	resolver    Resolver
	fetcher     SeriesFetcher
	lookback    time.Duration
	concurrency int
	clock       cache.Clock
	publish     func(model.Snapshot)

	mu         sync.Mutex
	interval   string
	selections map[string]model.Selection
	order      []string
	gen        uint64

	// orderMu is held from the staleness check through the publisher call,
	// so observers receive generations in increasing order.
	orderMu sync.Mutex

	pubMu   sync.RWMutex
	current model.Snapshot
}

// pass is the input of one recomputation, captured under mu.
type pass struct {
	gen      uint64
	interval string
	sels     []model.Selection
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the bar interval, e.g. "1h" or "4h".
func WithInterval(interval string) Option {
	return func(e *Engine) {
		if interval != "" {
			e.interval = interval
		}
	}
}

// WithLookback sets the trailing window length.
func WithLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

// WithConcurrency caps parallel historical fetches within one pass.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock sets the clock that anchors the lookback window.
func WithClock(c cache.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPublisher registers a callback invoked with every published snapshot.
// Calls are serialized in generation order; fn must not mutate the engine.
func WithPublisher(fn func(model.Snapshot)) Option {
	return func(e *Engine) {
		e.publish = fn
	}
}

// New creates an engine with an empty selection set.
func New(resolver Resolver, fetcher SeriesFetcher, opts ...Option) *Engine {
	e := &Engine{
		resolver:    resolver,
		fetcher:     fetcher,
		interval:    DefaultInterval,
		lookback:    DefaultLookback,
		concurrency: DefaultConcurrency,
		clock:       cache.SystemClock{},
		selections:  make(map[string]model.Selection),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Interval returns the current bar interval.
func (e *Engine) Interval() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// SetInterval switches the bar interval and recomputes the product.
func (e *Engine) SetInterval(ctx context.Context, interval string) (model.Snapshot, error) {
	interval = strings.TrimSpace(interval)
	if !calculator.ValidInterval(interval) {
		return e.Snapshot(), fmt.Errorf("set interval %q: %w", interval, ErrInvalidInterval)
	}

	e.mu.Lock()
	e.interval = interval
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p), nil
}

// Select adds symbol in direction dir, or flips the direction of an existing
// selection in place. The beta is copied from the catalog on first selection
// only. Unknown symbols leave the state untouched.
func (e *Engine) Select(ctx context.Context, symbol string, dir model.Direction) (model.Snapshot, error) {
	symbol = normalize(symbol)
	if dir != model.Long && dir != model.Short {
		return e.Snapshot(), fmt.Errorf("select %s: invalid direction %q", symbol, dir)
	}
	inst, ok := e.resolver.Lookup(ctx, symbol)
	if !ok {
		return e.Snapshot(), fmt.Errorf("select %s: %w", symbol, ErrUnknownInstrument)
	}

	e.mu.Lock()
	if sel, exists := e.selections[symbol]; exists {
		sel.Direction = dir
		e.selections[symbol] = sel
	} else {
		e.selections[symbol] = model.Selection{Symbol: symbol, Beta: inst.Beta, Direction: dir}
		e.order = append(e.order, symbol)
	}
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p), nil
}

// Deselect removes symbol if present and recomputes.
func (e *Engine) Deselect(ctx context.Context, symbol string) model.Snapshot {
	symbol = normalize(symbol)

	e.mu.Lock()
	if _, exists := e.selections[symbol]; exists {
		delete(e.selections, symbol)
		for i, s := range e.order {
			if s == symbol {
				e.order = append(e.order[:i:i], e.order[i+1:]...)
				break
			}
		}
	}
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p)
}

// SetBeta overrides the beta of an already selected symbol.
func (e *Engine) SetBeta(ctx context.Context, symbol string, beta float64) (model.Snapshot, error) {
	symbol = normalize(symbol)

	e.mu.Lock()
	sel, exists := e.selections[symbol]
	if !exists {
		e.mu.Unlock()
		return e.Snapshot(), fmt.Errorf("set beta %s: %w", symbol, ErrNotSelected)
	}
	sel.Beta = beta
	e.selections[symbol] = sel
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p), nil
}

// Flip moves an already selected symbol to the opposite side, keeping its beta.
func (e *Engine) Flip(ctx context.Context, symbol string) (model.Snapshot, error) {
	symbol = normalize(symbol)

	e.mu.Lock()
	sel, exists := e.selections[symbol]
	if !exists {
		e.mu.Unlock()
		return e.Snapshot(), fmt.Errorf("flip %s: %w", symbol, ErrNotSelected)
	}
	sel.Direction = sel.Direction.Opposite()
	e.selections[symbol] = sel
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p), nil
}

// Clear empties the selection set.
func (e *Engine) Clear(ctx context.Context) model.Snapshot {
	e.mu.Lock()
	e.selections = make(map[string]model.Selection)
	e.order = nil
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p)
}

// Refresh recomputes the current selection set against fresh data.
func (e *Engine) Refresh(ctx context.Context) model.Snapshot {
	e.mu.Lock()
	p := e.bumpLocked()
	e.mu.Unlock()

	return e.run(ctx, p)
}

// Selections returns the selection set in insertion order.
func (e *Engine) Selections() []model.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderedLocked()
}

// Product returns a copy of the published index series.
func (e *Engine) Product() []model.IndexPoint {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return append([]model.IndexPoint(nil), e.current.Points...)
}

// Snapshot returns the last published snapshot.
func (e *Engine) Snapshot() model.Snapshot {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return e.current
}

func (e *Engine) bumpLocked() pass {
	e.gen++
	return pass{gen: e.gen, interval: e.interval, sels: e.orderedLocked()}
}

func (e *Engine) orderedLocked() []model.Selection {
	out := make([]model.Selection, 0, len(e.order))
	for _, s := range e.order {
		out = append(out, e.selections[s])
	}
	return out
}

// run computes pass p and publishes it unless a newer mutation happened
// meanwhile. The computed snapshot is returned either way.
func (e *Engine) run(ctx context.Context, p pass) model.Snapshot {
	snap := e.recompute(ctx, p.sels, p.interval)
	snap.Generation = p.gen

	e.orderMu.Lock()
	defer e.orderMu.Unlock()

	e.mu.Lock()
	latest := e.gen
	e.mu.Unlock()
	if p.gen != latest {
		log.Printf("[INFO] discarding superseded pass %d (latest %d)", p.gen, latest)
		return snap
	}

	e.pubMu.Lock()
	e.current = snap
	e.pubMu.Unlock()
	if e.publish != nil {
		e.publish(snap)
	}
	return snap
}

// Recompute derives a snapshot from sels and freshly fetched bars at the
// current interval. It does not touch engine state.
func (e *Engine) Recompute(ctx context.Context, sels []model.Selection) model.Snapshot {
	return e.recompute(ctx, sels, e.Interval())
}

func (e *Engine) recompute(ctx context.Context, sels []model.Selection, interval string) model.Snapshot {
	now := e.clock.Now()
	snap := model.Snapshot{
		Interval:   interval,
		Selections: append([]model.Selection(nil), sels...),
		ComputedAt: now,
	}
	if len(sels) == 0 {
		return snap
	}

	start := now.Add(-e.lookback)
	series := make([][]model.Kline, len(sels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sel := range sels {
		g.Go(func() error {
			series[i] = e.fetcher.HistoricalSeries(gctx, sel.Symbol, interval, start, now)
			return nil
		})
	}
	_ = g.Wait()

	var (
		weighted [][]calculator.Point
		kept     []model.Selection
	)
	for i, sel := range sels {
		bars := series[i]
		if len(bars) == 0 {
			log.Printf("[WARN] %s: no data in window, dropped from pass", sel.Symbol)
			continue
		}
		rets, err := calculator.SimpleReturns(bars)
		if err != nil {
			log.Printf("[WARN] %s: %v, dropped from pass", sel.Symbol, err)
			continue
		}
		if len(rets) == 0 {
			log.Printf("[WARN] %s: single bar in window, dropped from pass", sel.Symbol)
			continue
		}
		weighted = append(weighted, calculator.Weight(rets, sel.Weight()))
		kept = append(kept, sel)
		snap.Contributions = append(snap.Contributions, contribution(sel, bars))
	}

	times, matrix := calculator.AlignInner(weighted)
	if len(times) == 0 {
		return snap
	}
	combined, err := calculator.Combine(matrix)
	if err != nil {
		log.Printf("[ERROR] combine returns: %v", err)
		return snap
	}
	points, err := calculator.Compound(times, combined)
	if err != nil {
		log.Printf("[ERROR] compound returns: %v", err)
		return snap
	}
	snap.Points = points
	snap.Stats = calculator.Stats(points, interval)

	legs, err := calculator.CompoundLegs(times, matrix)
	if err != nil {
		log.Printf("[ERROR] compound legs: %v", err)
		return snap
	}
	var longs, shorts [][]model.IndexPoint
	for i, sel := range kept {
		snap.Legs = append(snap.Legs, model.LegSeries{
			Symbol:    sel.Symbol,
			Direction: sel.Direction,
			Beta:      sel.Beta,
			Points:    legs[i],
		})
		if sel.Direction == model.Short {
			shorts = append(shorts, legs[i])
		} else {
			longs = append(longs, legs[i])
		}
	}
	snap.LongLine = calculator.SideLine(longs)
	snap.ShortLine = calculator.SideLine(shorts)
	return snap
}

func contribution(sel model.Selection, bars []model.Kline) model.Contribution {
	c := model.Contribution{
		Symbol:    sel.Symbol,
		Direction: sel.Direction,
		Beta:      sel.Beta,
		Bars:      len(bars),
		ReturnPct: calculator.WindowReturn(bars),
		RangePos:  0.5,
	}
	if high, low, err := calculator.WindowRange(bars); err == nil {
		last := bars[len(bars)-1].Close.InexactFloat64()
		if pos, err := calculator.RangePosition(last, high, low); err == nil {
			c.RangePos = pos
		}
	}
	return c
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
