package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"BetaBasket/internal/cache"
	"BetaBasket/internal/model"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL    = "https://fapi.binance.com"
	DefaultQuoteAsset = "USDT"
	DefaultPriceTTL   = time.Hour

	exchangeInfoPath = "/fapi/v1/exchangeInfo"
	tickerPricePath  = "/fapi/v1/ticker/price"
	klinesPath       = "/fapi/v1/klines"

	klinePageLimit = 1500
	maxKlinePages  = 64
)

// BinanceClient implements Fetcher over the Binance USDⓈ-M futures REST API.
type BinanceClient struct {
	baseURL    string
	userAgent  string
	quoteAsset string
	priceTTL   time.Duration
	httpClient *http.Client
	cache      *cache.RequestCache
	sink       Sink
}

// ClientOption configures a BinanceClient.
type ClientOption func(*BinanceClient)

// NewBinanceClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewBinanceClient(baseURL string, opts ...ClientOption) *BinanceClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &BinanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "BetaBasket/1.0",
		quoteAsset: DefaultQuoteAsset,
		priceTTL:   DefaultPriceTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sink:       LogSink{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New(nil)
	}
	return c
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *BinanceClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *BinanceClient) {
		c.httpClient.Timeout = d
	}
}

// WithProxy routes requests through the given proxy URL. Invalid URLs are ignored.
func WithProxy(proxyURL string) ClientOption {
	return func(c *BinanceClient) {
		if proxyURL == "" {
			return
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		c.httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}
}

// WithSink sets where request failures are reported.
func WithSink(s Sink) ClientOption {
	return func(c *BinanceClient) {
		c.sink = s
	}
}

// WithCache shares a request cache, e.g. one driven by a test clock.
func WithCache(rc *cache.RequestCache) ClientOption {
	return func(c *BinanceClient) {
		c.cache = rc
	}
}

// WithPriceTTL sets how long a ticker snapshot is reused.
func WithPriceTTL(d time.Duration) ClientOption {
	return func(c *BinanceClient) {
		c.priceTTL = d
	}
}

// WithQuoteAsset sets the settlement suffix used to filter symbols.
func WithQuoteAsset(asset string) ClientOption {
	return func(c *BinanceClient) {
		if asset != "" {
			c.quoteAsset = strings.ToUpper(asset)
		}
	}
}

func (c *BinanceClient) Name() string { return "binance-futures" }

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// ListInstrumentSymbols returns the tradable symbols quoted in the configured
// asset. The list is fetched once and kept for the lifetime of the client.
func (c *BinanceClient) ListInstrumentSymbols(ctx context.Context) []string {
	key := cache.Key(exchangeInfoPath, url.Values{"quote": {c.quoteAsset}})
	symbols, err := cache.Fetch(c.cache, key, 0, func() ([]string, error) {
		var info exchangeInfo
		if err := c.get(ctx, exchangeInfoPath, nil, &info); err != nil {
			return nil, err
		}
		var out []string
		for _, s := range info.Symbols {
			if !strings.HasSuffix(s.Symbol, c.quoteAsset) {
				continue
			}
			if s.Status != "" && s.Status != "TRADING" {
				continue
			}
			out = append(out, s.Symbol)
		}
		if len(out) == 0 {
			return nil, cache.ErrNoData
		}
		return out, nil
	})
	if err != nil {
		c.report(exchangeInfoPath, err)
		return nil
	}
	return append([]string(nil), symbols...)
}

// LatestPrices returns the last traded price for each requested symbol found
// in the ticker snapshot. Symbols absent from the snapshot are omitted.
func (c *BinanceClient) LatestPrices(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	tickers, err := cache.Fetch(c.cache, cache.Key(tickerPricePath, nil), c.priceTTL, func() ([]tickerPrice, error) {
		var out []tickerPrice
		if err := c.get(ctx, tickerPricePath, nil, &out); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, cache.ErrNoData
		}
		return out, nil
	})
	if err != nil {
		c.report(tickerPricePath, err)
		return map[string]decimal.Decimal{}
	}

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[s] = struct{}{}
	}
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, t := range tickers {
		if _, ok := wanted[t.Symbol]; ok {
			prices[t.Symbol] = t.Price
		}
	}
	return prices
}

// HistoricalSeries returns the bars of symbol opening in [start, end). A zero
// end means "up to now". Requests are never cached. Any failure yields an
// empty series.
func (c *BinanceClient) HistoricalSeries(ctx context.Context, symbol, interval string, start, end time.Time) []model.Kline {
	bars, err := c.fetchKlines(ctx, symbol, interval, start, end)
	if err != nil {
		c.report(klinesPath+" "+symbol, err)
		return nil
	}
	return bars
}

func (c *BinanceClient) fetchKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Kline, error) {
	var bars []model.Kline
	cursor := start
	for page := 0; page < maxKlinePages; page++ {
		q := url.Values{
			"symbol":    {symbol},
			"interval":  {interval},
			"startTime": {strconv.FormatInt(cursor.UnixMilli(), 10)},
			"limit":     {strconv.Itoa(klinePageLimit)},
		}
		if !end.IsZero() {
			// endTime is inclusive upstream
			q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
		}

		var rows [][]json.RawMessage
		if err := c.get(ctx, klinesPath, q, &rows); err != nil {
			return nil, err
		}
		batch, err := parseKlines(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, batch...)
		if len(batch) < klinePageLimit {
			break
		}
		cursor = batch[len(batch)-1].OpenTime.Add(time.Millisecond)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	return bars, nil
}

// parseKlines converts the positional kline arrays returned by the exchange:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(rows [][]json.RawMessage) ([]model.Kline, error) {
	bars := make([]model.Kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var fields [5]decimal.Decimal
		for j := range fields {
			if err := json.Unmarshal(row[j+1], &fields[j]); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
		}
		bars = append(bars, model.Kline{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   fields[4],
		})
	}
	return bars, nil
}

func (c *BinanceClient) report(what string, err error) {
	if c.sink == nil {
		return
	}
	if errors.Is(err, cache.ErrNoData) {
		c.sink.Report(fmt.Sprintf("GET %s%s: %v", c.baseURL, what, err))
		return
	}
	c.sink.Report(fmt.Sprintf("GET %s%s failed: %v", c.baseURL, what, err))
}
