package cache

import (
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

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

func newClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestGet_HitBeforeExpiry(t *testing.T) {
	clk := newClock()
	c := New(clk)
	calls := 0
	producer := func() (any, error) {
		calls++
		return calls, nil
	}

	v, err := c.Get("k", time.Minute, producer)
	if err != nil || v.(int) != 1 {
		t.Fatalf("first Get = %v, %v", v, err)
	}
	clk.Advance(59 * time.Second)
	v, _ = c.Get("k", time.Minute, producer)
	if v.(int) != 1 {
		t.Errorf("expected cached value 1, got %v", v)
	}
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}

func TestGet_RefreshAtExpiry(t *testing.T) {
	clk := newClock()
	c := New(clk)
	calls := 0
	producer := func() (any, error) {
		calls++
		return calls, nil
	}

	c.Get("k", time.Minute, producer)
	clk.Advance(time.Minute)
	v, _ := c.Get("k", time.Minute, producer)
	if v.(int) != 2 {
		t.Errorf("expected refreshed value 2 at expiry, got %v", v)
	}

	// the refresh also resets the timestamp
	clk.Advance(30 * time.Second)
	v, _ = c.Get("k", time.Minute, producer)
	if v.(int) != 2 {
		t.Errorf("expected value 2 within new ttl, got %v", v)
	}
}

func TestGet_ZeroTTLNeverExpires(t *testing.T) {
	clk := newClock()
	c := New(clk)
	calls := 0
	producer := func() (any, error) {
		calls++
		return "symbols", nil
	}
	c.Get("k", 0, producer)
	clk.Advance(365 * 24 * time.Hour)
	c.Get("k", 0, producer)
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	c := New(newClock())
	calls := 0
	producer := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, ErrNoData
		}
		return "ok", nil
	}

	if _, err := c.Get("k", time.Hour, producer); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("failure was stored: len=%d", c.Len())
	}
	v, err := c.Get("k", time.Hour, producer)
	if err != nil || v != "ok" {
		t.Errorf("retry Get = %v, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("producer called %d times, want 2", calls)
	}
}

func TestGet_ConcurrentMissesShareProducer(t *testing.T) {
	c := New(newClock())
	var calls atomic.Int32
	release := make(chan struct{})
	producer := func() (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get("k", time.Hour, producer)
		}(i)
	}
	// give goroutines a chance to pile up on the key
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("producer called %d times, want 1", n)
	}
	for i, r := range results {
		if r != 42 {
			t.Errorf("result[%d] = %v, want 42", i, r)
		}
	}
}

func TestFetch_Typed(t *testing.T) {
	c := New(nil)
	got, err := Fetch(c, "k", time.Hour, func() ([]string, error) {
		return []string{"BTCUSDT"}, nil
	})
	if err != nil || len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("Fetch = %v, %v", got, err)
	}
	_, err = Fetch(c, "other", time.Hour, func() ([]string, error) {
		return nil, ErrNoData
	})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestKey(t *testing.T) {
	a := Key("/fapi/v1/klines", url.Values{"symbol": {"BTCUSDT"}, "interval": {"1h"}})
	b := Key("/fapi/v1/klines", url.Values{"interval": {"1h"}, "symbol": {"BTCUSDT"}})
	if a != b {
		t.Errorf("parameter order changed the key: %q vs %q", a, b)
	}
	tests := []struct {
		endpoint string
		params   url.Values
	}{
		{"/fapi/v1/klines", url.Values{"symbol": {"ETHUSDT"}, "interval": {"1h"}}},
		{"/fapi/v1/klines", url.Values{"symbol": {"BTCUSDT"}, "interval": {"4h"}}},
		{"/fapi/v1/ticker/price", url.Values{"symbol": {"BTCUSDT"}, "interval": {"1h"}}},
		{"/fapi/v1/klines", nil},
	}
	for _, tt := range tests {
		if k := Key(tt.endpoint, tt.params); k == a {
			t.Errorf("Key(%q, %v) collided with %q", tt.endpoint, tt.params, a)
		}
	}
	if Key("/fapi/v1/exchangeInfo", nil) != "/fapi/v1/exchangeInfo" {
		t.Error("empty params should yield the bare endpoint")
	}
}
