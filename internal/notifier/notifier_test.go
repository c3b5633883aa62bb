package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"BetaBasket/internal/collector"
	"BetaBasket/internal/model"
	"BetaBasket/internal/recorder"
	"BetaBasket/internal/session"
	"BetaBasket/internal/synthetic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

type fakeMessenger struct {
	mu    sync.Mutex
	fails int
	sent  []tgbotapi.MessageConfig
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, errors.New("telegram down")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestNotifier(fm *fakeMessenger) *TelegramNotifier {
	return &TelegramNotifier{AdminChatID: 99, api: fm, backoff: time.Millisecond}
}

func TestSendWithRetry(t *testing.T) {
	fm := &fakeMessenger{fails: 2}
	n := newTestNotifier(fm)
	if err := n.SendWithRetry(context.Background(), 7, "hi", 2); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if fm.count() != 1 || fm.sent[0].ChatID != 7 || fm.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Errorf("sent = %+v", fm.sent)
	}

	fm = &fakeMessenger{fails: 5}
	n = newTestNotifier(fm)
	if err := n.SendWithRetry(context.Background(), 7, "hi", 1); err == nil {
		t.Error("expected exhausted retries")
	}
}

func TestTelegramSink(t *testing.T) {
	fm := &fakeMessenger{}
	sink := NewTelegramSink(newTestNotifier(fm))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Report("klines BTCUSDT: <timeout>")
	deadline := time.Now().Add(2 * time.Second)
	for fm.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fm.count() != 1 {
		t.Fatalf("expected one notice delivered, got %d", fm.count())
	}
	msg := fm.sent[0]
	if msg.ChatID != 99 || !strings.Contains(msg.Text, "&lt;timeout&gt;") {
		t.Errorf("notice = %+v", msg)
	}
}

func TestTelegramSink_NoAdminOnlyLogs(t *testing.T) {
	n := newTestNotifier(&fakeMessenger{})
	n.AdminChatID = 0
	sink := NewTelegramSink(n)
	sink.Report("x")
	if len(sink.queue) != 0 {
		t.Error("notice should not be queued without an admin chat")
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestCommands(t *testing.T) (*Commands, *session.Registry) {
	t.Helper()
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock := collector.NewMockFetcher(map[string][]model.Kline{
		"BTCUSDT": collector.GenerateMockBars(60000, 48, end, 0.001),
		"ETHUSDT": collector.GenerateMockBars(3000, 48, end, 0.002),
	})
	cat := collector.NewCatalog(mock, time.Minute, nil, nil)
	reg := session.NewRegistry(func(publish func(model.Snapshot)) *synthetic.Engine {
		return synthetic.New(cat, mock,
			synthetic.WithLookback(7*24*time.Hour),
			synthetic.WithClock(fixedClock{end}),
			synthetic.WithPublisher(publish))
	}, nil)
	return &Commands{Catalog: cat, Sessions: reg, Recorder: recorder.NewNoopRecorder()}, reg
}

func TestCommands_BasketFlow(t *testing.T) {
	c, reg := newTestCommands(t)
	ctx := context.Background()
	key := ChatKey(42)

	reply := c.Handle(ctx, key, "/long btcusdt")
	if !strings.Contains(reply, "LONG BTCUSDT") || !strings.Contains(reply, "Index:") {
		t.Errorf("long reply = %q", reply)
	}
	reply = c.Handle(ctx, key, "/short@BetaBasketBot ETHUSDT")
	if !strings.Contains(reply, "SHORT ETHUSDT") {
		t.Errorf("short reply = %q", reply)
	}
	reply = c.Handle(ctx, key, "/beta ETHUSDT 1.5")
	if !strings.Contains(reply, "β1.50") {
		t.Errorf("beta reply = %q", reply)
	}

	s := reg.GetOrCreate(key)
	if n := len(s.Engine.Selections()); n != 2 {
		t.Fatalf("selections = %d, want 2", n)
	}

	reply = c.Handle(ctx, key, "/remove BTCUSDT")
	if strings.Contains(reply, "BTCUSDT") {
		t.Errorf("removed leg still shown: %q", reply)
	}
	reply = c.Handle(ctx, key, "/clear")
	if !strings.Contains(reply, "Basket is empty") {
		t.Errorf("clear reply = %q", reply)
	}
	if other := reg.GetOrCreate(ChatKey(43)); len(other.Engine.Selections()) != 0 {
		t.Error("chats must not share a basket")
	}
}

func TestCommands_Errors(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	key := ChatKey(1)

	tests := []struct {
		text string
		want string
	}{
		{"/long DOGEUSDT", "unknown instrument DOGEUSDT"},
		{"/long", "Usage: /long SYM"},
		{"/beta BTCUSDT 1.2", "not in the basket"},
		{"/beta BTCUSDT abc", "positive number"},
		{"/frobnicate", "Unknown command"},
		{"/history", "Nothing recorded yet"},
	}
	for _, tt := range tests {
		if got := c.Handle(ctx, key, tt.text); !strings.Contains(got, tt.want) {
			t.Errorf("Handle(%q) = %q, want substring %q", tt.text, got, tt.want)
		}
	}
	if got := c.Handle(ctx, key, "hello there"); got != "" {
		t.Errorf("plain text should be ignored, got %q", got)
	}
}

func TestFormatCatalog(t *testing.T) {
	insts := []model.Instrument{
		{Symbol: "ETHUSDT", LastPrice: decimal.RequireFromString("3012.5"), Beta: 1},
		{Symbol: "BTCUSDT", LastPrice: decimal.RequireFromString("61234.1"), Beta: 1},
		{Symbol: "NEWUSDT", Beta: 1},
	}
	out := FormatCatalog(insts, "", 2)
	if strings.Index(out, "BTCUSDT") > strings.Index(out, "ETHUSDT") {
		t.Error("catalog should be sorted by symbol")
	}
	if !strings.Contains(out, "61,234.1") {
		t.Errorf("price should be comma-grouped: %q", out)
	}
	if !strings.Contains(out, "and 1 more") {
		t.Errorf("limit not applied: %q", out)
	}
	if out := FormatCatalog(insts, "new", 0); !strings.Contains(out, "NEWUSDT  n/a") {
		t.Errorf("filtered catalog = %q", out)
	}
	if out := FormatCatalog(insts, "xyz", 0); out != "No instruments match." {
		t.Errorf("no match = %q", out)
	}
}

func TestFormatBasket_NoOverlap(t *testing.T) {
	snap := model.Snapshot{Selections: []model.Selection{{Symbol: "BTCUSDT", Beta: 1, Direction: model.Long}}}
	out := FormatBasket(snap, "1h")
	if !strings.Contains(out, "No overlapping history") {
		t.Errorf("out = %q", out)
	}
}

// slowResolver stalls the first lookup so a later command could overtake it.
type slowResolver struct {
	*collector.Catalog
	delay time.Duration
	once  sync.Once
}

func (r *slowResolver) Lookup(ctx context.Context, symbol string) (model.Instrument, bool) {
	r.once.Do(func() { time.Sleep(r.delay) })
	return r.Catalog.Lookup(ctx, symbol)
}

type replyLog struct {
	mu      sync.Mutex
	replies []string
	got     chan struct{}
}

func newReplyLog() *replyLog { return &replyLog{got: make(chan struct{}, 16)} }

func (l *replyLog) reply(_ context.Context, _ int64, text string) {
	l.mu.Lock()
	l.replies = append(l.replies, text)
	l.mu.Unlock()
	l.got <- struct{}{}
}

func (l *replyLog) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-l.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d replies", i, n)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.replies...)
}

func TestDispatcher_CommandsRunInOrderPerChat(t *testing.T) {
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock := collector.NewMockFetcher(map[string][]model.Kline{
		"BTCUSDT": collector.GenerateMockBars(60000, 48, end, 0.001),
	})
	res := &slowResolver{Catalog: collector.NewCatalog(mock, time.Minute, nil, nil), delay: 100 * time.Millisecond}
	reg := session.NewRegistry(func(publish func(model.Snapshot)) *synthetic.Engine {
		return synthetic.New(res, mock,
			synthetic.WithLookback(7*24*time.Hour),
			synthetic.WithClock(fixedClock{end}),
			synthetic.WithPublisher(publish))
	}, nil)
	c := &Commands{Catalog: res.Catalog, Sessions: reg}

	ctx, cancel := context.WithCancel(context.Background())
	rl := newReplyLog()
	d := NewDispatcher(c.Handler(), rl.reply)

	d.Dispatch(ctx, 42, "/long BTCUSDT")
	d.Dispatch(ctx, 42, "/short BTCUSDT")
	replies := rl.wait(t, 2)
	cancel()
	d.Wait()

	if !strings.Contains(replies[0], "LONG BTCUSDT") || !strings.Contains(replies[1], "SHORT BTCUSDT") {
		t.Errorf("replies out of order: %q", replies)
	}
	sels := reg.GetOrCreate(ChatKey(42)).Engine.Selections()
	if len(sels) != 1 || sels[0].Direction != model.Short {
		t.Errorf("final selections = %+v, want BTCUSDT SHORT", sels)
	}
}

func TestDispatcher_ChatsAreIndependent(t *testing.T) {
	release := make(chan struct{})
	handler := func(_ context.Context, chatID int64, text string) string {
		if chatID == 1 {
			<-release
		}
		return text
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newReplyLog()
	d := NewDispatcher(handler, rl.reply)

	d.Dispatch(ctx, 1, "blocked")
	d.Dispatch(ctx, 2, "free")
	if got := rl.wait(t, 1); got[0] != "free" {
		t.Errorf("first reply = %q, want the unblocked chat", got[0])
	}
	close(release)
	rl.wait(t, 1)
}

func TestCommands_FlipAndInterval(t *testing.T) {
	c, reg := newTestCommands(t)
	ctx := context.Background()
	key := ChatKey(7)

	if got := c.Handle(ctx, key, "/flip BTCUSDT"); !strings.Contains(got, "not in the basket") {
		t.Errorf("flip unselected = %q", got)
	}
	c.Handle(ctx, key, "/long BTCUSDT")
	if got := c.Handle(ctx, key, "/flip btcusdt"); !strings.Contains(got, "SHORT BTCUSDT") {
		t.Errorf("flip reply = %q", got)
	}

	if got := c.Handle(ctx, key, "/interval"); !strings.Contains(got, "<b>1h</b>") {
		t.Errorf("interval reply = %q", got)
	}
	if got := c.Handle(ctx, key, "/interval 7m"); !strings.Contains(got, "unsupported interval") {
		t.Errorf("invalid interval reply = %q", got)
	}
	got := c.Handle(ctx, key, "/interval 4h")
	if !strings.Contains(got, "| 4h bars") {
		t.Errorf("interval change reply = %q", got)
	}
	s := reg.GetOrCreate(key)
	if s.Engine.Interval() != "4h" || s.Engine.Snapshot().Interval != "4h" {
		t.Errorf("engine interval = %q", s.Engine.Interval())
	}
}

func TestFormatBasket_SideLines(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	snap := model.Snapshot{
		Interval:   "4h",
		Selections: []model.Selection{{Symbol: "BTCUSDT", Beta: 1, Direction: model.Long}},
		Points:     []model.IndexPoint{{Time: ts, Value: 103}},
		Legs: []model.LegSeries{{Symbol: "BTCUSDT", Direction: model.Long, Beta: 1,
			Points: []model.IndexPoint{{Time: ts, Value: 103}}}},
		LongLine:      []model.IndexPoint{{Time: ts, Value: 103}},
		Contributions: []model.Contribution{{Symbol: "BTCUSDT", ReturnPct: 3, Bars: 2}},
	}
	out := FormatBasket(snap, "1h")
	for _, want := range []string{"| 4h bars", "Long side: 103.00", "→ 103.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "Short side") {
		t.Errorf("no short legs, got %q", out)
	}
}
