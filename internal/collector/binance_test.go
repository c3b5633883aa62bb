package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BetaBasket/internal/cache"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSink) Report(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

const exchangeInfoBody = `{"symbols":[
	{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT"},
	{"symbol":"ETHUSDT","status":"TRADING","quoteAsset":"USDT"},
	{"symbol":"ETHBTC","status":"TRADING","quoteAsset":"BTC"},
	{"symbol":"LUNAUSDT","status":"SETTLING","quoteAsset":"USDT"}
]}`

const tickerBody = `[
	{"symbol":"BTCUSDT","price":"64000.10","time":1700000000000},
	{"symbol":"ETHUSDT","price":"3100.5","time":1700000000000},
	{"symbol":"ETHBTC","price":"0.048","time":1700000000000}
]`

func TestListInstrumentSymbols(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/exchangeInfo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		hits.Add(1)
		w.Write([]byte(exchangeInfoBody))
	}))
	defer server.Close()

	c := NewBinanceClient(server.URL)
	got := c.ListInstrumentSymbols(context.Background())
	want := []string{"BTCUSDT", "ETHUSDT"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("symbols = %v, want %v", got, want)
	}

	// the list is fetched once per client
	c.ListInstrumentSymbols(context.Background())
	if n := hits.Load(); n != 1 {
		t.Errorf("exchangeInfo requested %d times, want 1", n)
	}
}

func TestLatestPrices_TTL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(tickerBody))
	}))
	defer server.Close()

	clk := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewBinanceClient(server.URL, WithCache(cache.New(clk)), WithPriceTTL(time.Hour))

	prices := c.LatestPrices(context.Background(), []string{"BTCUSDT", "DOGEUSDT"})
	if len(prices) != 1 {
		t.Fatalf("expected 1 price, got %v", prices)
	}
	if prices["BTCUSDT"].String() != "64000.1" {
		t.Errorf("BTCUSDT = %s, want 64000.1", prices["BTCUSDT"])
	}

	// a different symbol set reuses the same snapshot
	prices = c.LatestPrices(context.Background(), []string{"ETHUSDT"})
	if prices["ETHUSDT"].String() != "3100.5" {
		t.Errorf("ETHUSDT = %s, want 3100.5", prices["ETHUSDT"])
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("ticker requested %d times before expiry, want 1", n)
	}

	clk.Advance(time.Hour)
	c.LatestPrices(context.Background(), []string{"ETHUSDT"})
	if n := hits.Load(); n != 2 {
		t.Errorf("ticker requested %d times after expiry, want 2", n)
	}
}

func TestFailuresDegradeToEmpty(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	sink := &recordingSink{}
	c := NewBinanceClient(server.URL, WithSink(sink))
	ctx := context.Background()

	if got := c.ListInstrumentSymbols(ctx); len(got) != 0 {
		t.Errorf("symbols = %v, want empty", got)
	}
	if got := c.LatestPrices(ctx, []string{"BTCUSDT"}); got == nil || len(got) != 0 {
		t.Errorf("prices = %v, want empty non-nil map", got)
	}
	if got := c.HistoricalSeries(ctx, "NOPEUSDT", "1h", time.Now().Add(-time.Hour), time.Time{}); len(got) != 0 {
		t.Errorf("series = %v, want empty", got)
	}
	if sink.Len() != 3 {
		t.Errorf("sink received %d notices, want 3", sink.Len())
	}
	if !strings.Contains(sink.msgs[0], "Invalid symbol.") {
		t.Errorf("notice should carry the exchange message, got %q", sink.msgs[0])
	}

	// failures are not cached: the symbol list is requested again
	before := hits.Load()
	c.ListInstrumentSymbols(ctx)
	if hits.Load() != before+1 {
		t.Error("failed symbol fetch was cached")
	}
}

func TestFailures_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sink := &recordingSink{}
	c := NewBinanceClient(url, WithSink(sink), WithTimeout(time.Second))
	if got := c.HistoricalSeries(context.Background(), "BTCUSDT", "1h", time.Now(), time.Time{}); got != nil {
		t.Errorf("series = %v, want nil", got)
	}
	if sink.Len() != 1 {
		t.Errorf("sink received %d notices, want 1", sink.Len())
	}
}

func klineRow(openMs int64, close string) string {
	return fmt.Sprintf(`[%d,"1.0","2.0","0.5","%s","100.0",%d,"0",10,"0","0","0"]`, openMs, close, openMs+3599999)
}

func TestHistoricalSeries_ParsesAndPages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := klinePageLimit + 10
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("endTime") != "" {
			t.Errorf("endTime should be omitted for an open-ended window")
		}
		from, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		var rows []string
		for i := 0; i < total; i++ {
			ts := start.Add(time.Duration(i) * time.Hour).UnixMilli()
			if ts < from {
				continue
			}
			rows = append(rows, klineRow(ts, strconv.Itoa(100+i)))
			if len(rows) == limit {
				break
			}
		}
		w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	defer server.Close()

	c := NewBinanceClient(server.URL)
	bars := c.HistoricalSeries(context.Background(), "BTCUSDT", "1h", start, time.Time{})
	if len(bars) != total {
		t.Fatalf("got %d bars, want %d", len(bars), total)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 pages, got %d requests", requests.Load())
	}
	if !bars[0].OpenTime.Equal(start) {
		t.Errorf("first open time = %v, want %v", bars[0].OpenTime, start)
	}
	if bars[5].Close.String() != "105" {
		t.Errorf("bar 5 close = %s, want 105", bars[5].Close)
	}
	if bars[0].High.String() != "2" || bars[0].Volume.String() != "100" {
		t.Errorf("unexpected bar fields: %+v", bars[0])
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].OpenTime.After(bars[i-1].OpenTime) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
	}
}

func TestHistoricalSeries_EmptyIsNotAnError(t *testing.T) {
	now := time.Now()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("endTime"); got != strconv.FormatInt(now.UnixMilli()-1, 10) {
			t.Errorf("endTime = %q, want one millisecond before end", got)
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	sink := &recordingSink{}
	c := NewBinanceClient(server.URL, WithSink(sink))
	bars := c.HistoricalSeries(context.Background(), "NEWUSDT", "1h", now.Add(-time.Hour), now)
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
	if sink.Len() != 0 {
		t.Errorf("empty data should not be reported, got %v", sink.msgs)
	}
}

func TestAPIError(t *testing.T) {
	err := error(&APIError{StatusCode: 429, Code: -1003, Message: "Too many requests"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !strings.Contains(err.Error(), "-1003") {
		t.Errorf("Error() = %q, want exchange code", err.Error())
	}
	plain := &APIError{StatusCode: 502, Message: "Bad Gateway"}
	if plain.Error() != "binance api error 502: Bad Gateway" {
		t.Errorf("Error() = %q", plain.Error())
	}
}

func TestParseKlines_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"1.0","2.0"]]`))
	}))
	defer server.Close()

	sink := &recordingSink{}
	c := NewBinanceClient(server.URL, WithSink(sink))
	if bars := c.HistoricalSeries(context.Background(), "BTCUSDT", "1h", time.Now(), time.Time{}); bars != nil {
		t.Errorf("expected nil for malformed payload, got %v", bars)
	}
	if sink.Len() != 1 {
		t.Errorf("malformed payload should be reported once, got %d", sink.Len())
	}
}
