package collector

import (
	"context"
	"time"

	"BetaBasket/internal/model"

	"github.com/shopspring/decimal"
)

// Fetcher defines the market data operations used by the catalog and engine.
// Implementations never return errors: failures are reported elsewhere and
// surface as empty results, which callers must read as "unavailable".
type Fetcher interface {
	ListInstrumentSymbols(ctx context.Context) []string
	LatestPrices(ctx context.Context, symbols []string) map[string]decimal.Decimal
	HistoricalSeries(ctx context.Context, symbol, interval string, start, end time.Time) []model.Kline
	Name() string
}
