package notifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"BetaBasket/internal/model"
	"BetaBasket/internal/recorder"
	"BetaBasket/internal/session"
	"BetaBasket/internal/synthetic"
)

// /cmd[@botname] [args]
var reCommand = regexp.MustCompile(`^/([a-z]+)(?:@[\w_]+)?(?:\s+(.*))?$`)

// DefaultListLimit caps /coins output.
const DefaultListLimit = 40

// InstrumentLister exposes the catalog to chat commands.
type InstrumentLister interface {
	Instruments(ctx context.Context) []model.Instrument
}

// Commands maps chat messages onto per-chat sessions.
type Commands struct {
	Catalog   InstrumentLister
	Sessions  *session.Registry
	Recorder  recorder.Recorder
	ListLimit int
}

// ChatKey is the session key of a Telegram chat.
func ChatKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Handler adapts Commands to the polling loop.
func (c *Commands) Handler() CommandHandler {
	return func(ctx context.Context, chatID int64, text string) string {
		return c.Handle(ctx, ChatKey(chatID), text)
	}
}

// Handle executes one command for the session bound to key and returns the reply.
// Non-command text yields an empty reply.
func (c *Commands) Handle(ctx context.Context, key, text string) string {
	g := reCommand.FindStringSubmatch(strings.TrimSpace(text))
	if g == nil {
		return ""
	}
	cmd, args := g[1], strings.Fields(g[2])

	switch cmd {
	case "start", "help":
		return FormatHelp()

	case "coins":
		limit := c.ListLimit
		if limit == 0 {
			limit = DefaultListLimit
		}
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}
		return FormatCatalog(c.Catalog.Instruments(ctx), filter, limit)

	case "long", "short":
		if len(args) != 1 {
			return fmt.Sprintf("Usage: /%s SYM", cmd)
		}
		dir, _ := model.ParseDirection(cmd)
		s := c.Sessions.GetOrCreate(key)
		snap, err := s.Engine.Select(ctx, args[0], dir)
		if errors.Is(err, synthetic.ErrUnknownInstrument) {
			return FormatError(fmt.Errorf("unknown instrument %s, see /coins", strings.ToUpper(args[0])))
		}
		if err != nil {
			return FormatError(err)
		}
		return FormatBasket(snap, s.Engine.Interval())

	case "remove":
		if len(args) != 1 {
			return "Usage: /remove SYM"
		}
		s := c.Sessions.GetOrCreate(key)
		return FormatBasket(s.Engine.Deselect(ctx, args[0]), s.Engine.Interval())

	case "beta":
		if len(args) != 2 {
			return "Usage: /beta SYM X"
		}
		beta, err := strconv.ParseFloat(args[1], 64)
		if err != nil || beta <= 0 {
			return FormatError(fmt.Errorf("beta must be a positive number, got %q", args[1]))
		}
		s := c.Sessions.GetOrCreate(key)
		snap, err := s.Engine.SetBeta(ctx, args[0], beta)
		if errors.Is(err, synthetic.ErrNotSelected) {
			return FormatError(fmt.Errorf("%s is not in the basket", strings.ToUpper(args[0])))
		}
		if err != nil {
			return FormatError(err)
		}
		return FormatBasket(snap, s.Engine.Interval())

	case "flip":
		if len(args) != 1 {
			return "Usage: /flip SYM"
		}
		s := c.Sessions.GetOrCreate(key)
		snap, err := s.Engine.Flip(ctx, args[0])
		if errors.Is(err, synthetic.ErrNotSelected) {
			return FormatError(fmt.Errorf("%s is not in the basket", strings.ToUpper(args[0])))
		}
		if err != nil {
			return FormatError(err)
		}
		return FormatBasket(snap, s.Engine.Interval())

	case "interval":
		s := c.Sessions.GetOrCreate(key)
		if len(args) == 0 {
			return fmt.Sprintf("Bar interval: <b>%s</b>", s.Engine.Interval())
		}
		if len(args) != 1 {
			return "Usage: /interval [1h|4h|1d...]"
		}
		snap, err := s.Engine.SetInterval(ctx, args[0])
		if errors.Is(err, synthetic.ErrInvalidInterval) {
			return FormatError(fmt.Errorf("unsupported interval %q, try 15m, 1h, 4h or 1d", args[0]))
		}
		if err != nil {
			return FormatError(err)
		}
		return FormatBasket(snap, s.Engine.Interval())

	case "clear":
		s := c.Sessions.GetOrCreate(key)
		return FormatBasket(s.Engine.Clear(ctx), s.Engine.Interval())

	case "basket":
		s := c.Sessions.GetOrCreate(key)
		return FormatBasket(s.Engine.Snapshot(), s.Engine.Interval())

	case "history":
		if c.Recorder == nil {
			return "Recording is disabled."
		}
		s := c.Sessions.GetOrCreate(key)
		rec, err := c.Recorder.LatestSnapshot(s.ID)
		if errors.Is(err, recorder.ErrNotFound) {
			return "Nothing recorded yet."
		}
		if err != nil {
			return FormatError(err)
		}
		return FormatRecord(rec)

	default:
		return "Unknown command. Try /help"
	}
}
