package collector

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"BetaBasket/internal/cache"
	"BetaBasket/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultCatalogInterval is how long a composed instrument list is reused.
const DefaultCatalogInterval = 5 * time.Minute

const catalogKey = "catalog/instruments"

// Catalog composes symbols and prices into the instrument list shown to users.
// It keeps its own cache so its cadence is independent of the client's.
type Catalog struct {
	Fetcher  Fetcher
	Interval time.Duration

	betas map[string]float64
	cache *cache.RequestCache
	clock cache.Clock

	mu          sync.Mutex
	refreshedAt time.Time
}

// NewCatalog creates a catalog. betas overrides the default beta per symbol.
func NewCatalog(fetcher Fetcher, interval time.Duration, betas map[string]float64, clock cache.Clock) *Catalog {
	if interval <= 0 {
		interval = DefaultCatalogInterval
	}
	if clock == nil {
		clock = cache.SystemClock{}
	}
	b := make(map[string]float64, len(betas))
	for sym, beta := range betas {
		b[strings.ToUpper(sym)] = beta
	}
	return &Catalog{
		Fetcher:  fetcher,
		Interval: interval,
		betas:    b,
		cache:    cache.New(clock),
		clock:    clock,
	}
}

// Refresh returns the instrument list, rebuilding it at most once per Interval.
// Instruments missing from the price snapshot carry a zero LastPrice.
func (c *Catalog) Refresh(ctx context.Context) []model.Instrument {
	list, err := cache.Fetch(c.cache, catalogKey, c.Interval, func() ([]model.Instrument, error) {
		symbols := c.Fetcher.ListInstrumentSymbols(ctx)
		if len(symbols) == 0 {
			return nil, cache.ErrNoData
		}
		prices := c.Fetcher.LatestPrices(ctx, symbols)

		out := make([]model.Instrument, 0, len(symbols))
		for _, sym := range symbols {
			price, ok := prices[sym]
			if !ok {
				price = decimal.Zero
			}
			out = append(out, model.Instrument{
				Symbol:    sym,
				LastPrice: price,
				Beta:      c.betaFor(sym),
			})
		}
		c.mu.Lock()
		c.refreshedAt = c.clock.Now()
		c.mu.Unlock()
		log.Printf("[INFO] catalog refreshed from %s: %d instruments, %d priced", c.Fetcher.Name(), len(out), len(prices))
		return out, nil
	})
	if err != nil {
		return nil
	}
	return append([]model.Instrument(nil), list...)
}

// Invalidate drops the cached list so the next Refresh rebuilds it.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

// Instruments is Refresh under the name the presentation layer uses.
func (c *Catalog) Instruments(ctx context.Context) []model.Instrument {
	return c.Refresh(ctx)
}

// Lookup resolves a symbol against the current catalog.
func (c *Catalog) Lookup(ctx context.Context, symbol string) (model.Instrument, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, inst := range c.Refresh(ctx) {
		if inst.Symbol == symbol {
			return inst, true
		}
	}
	return model.Instrument{}, false
}

// RefreshedAt returns when the cached list was last rebuilt.
func (c *Catalog) RefreshedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshedAt
}

func (c *Catalog) betaFor(symbol string) float64 {
	if b, ok := c.betas[symbol]; ok {
		return b
	}
	return model.DefaultBeta
}

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Prices map[string]decimal.Decimal
	Series map[string][]model.Kline
	Calls  map[string]int
}

// NewMockFetcher creates a mock that lists every symbol in series.
func NewMockFetcher(series map[string][]model.Kline) *MockFetcher {
	prices := make(map[string]decimal.Decimal, len(series))
	for sym, bars := range series {
		if len(bars) > 0 {
			prices[sym] = bars[len(bars)-1].Close
		}
	}
	return &MockFetcher{Prices: prices, Series: series, Calls: map[string]int{}}
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) ListInstrumentSymbols(_ context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["symbols"]++
	out := make([]string, 0, len(m.Series))
	for sym := range m.Series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (m *MockFetcher) LatestPrices(_ context.Context, symbols []string) map[string]decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["prices"]++
	out := make(map[string]decimal.Decimal)
	for _, s := range symbols {
		if p, ok := m.Prices[s]; ok {
			out[s] = p
		}
	}
	return out
}

// HistoricalSeries returns the configured bars opening in [start, end).
func (m *MockFetcher) HistoricalSeries(_ context.Context, symbol, _ string, start, end time.Time) []model.Kline {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["klines:"+symbol]++
	var out []model.Kline
	for _, b := range m.Series[symbol] {
		if b.OpenTime.Before(start) {
			continue
		}
		if !end.IsZero() && !b.OpenTime.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// CallCount returns how many times the named operation was invoked.
func (m *MockFetcher) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

// GenerateMockBars builds count hourly bars ending at end with a gentle drift.
func GenerateMockBars(basePrice float64, count int, end time.Time, drift float64) []model.Kline {
	bars := make([]model.Kline, count)
	start := end.Truncate(time.Hour).Add(-time.Duration(count) * time.Hour)
	p := basePrice
	for i := 0; i < count; i++ {
		p *= 1 + drift
		if i%3 == 2 {
			p *= 1 - drift/2
		}
		c := decimal.NewFromFloat(p).Round(4)
		bars[i] = model.Kline{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     c.Mul(decimal.NewFromFloat(0.999)).Round(4),
			High:     c.Mul(decimal.NewFromFloat(1.005)).Round(4),
			Low:      c.Mul(decimal.NewFromFloat(0.995)).Round(4),
			Close:    c,
			Volume:   decimal.NewFromInt(1000000),
		}
	}
	return bars
}
