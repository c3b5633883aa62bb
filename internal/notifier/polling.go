package notifier

import (
	"context"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandHandler is called when a user command is received in chatID.
type CommandHandler func(ctx context.Context, chatID int64, command string) string

// ReplyFunc delivers a handler's reply to chatID.
type ReplyFunc func(ctx context.Context, chatID int64, text string)

// Dispatcher runs commands one at a time per chat, in arrival order. Chats
// proceed independently, so a slow recomputation only delays its own chat.
type Dispatcher struct {
	handler CommandHandler
	reply   ReplyFunc

	mu     sync.Mutex
	queues map[int64]chan string
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. reply may be nil to discard replies.
func NewDispatcher(handler CommandHandler, reply ReplyFunc) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		reply:   reply,
		queues:  make(map[int64]chan string),
	}
}

// Dispatch queues text for chatID. It blocks only while that chat's queue is
// full, and gives up when ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID int64, text string) {
	d.mu.Lock()
	q, ok := d.queues[chatID]
	if !ok {
		q = make(chan string, 32)
		d.queues[chatID] = q
		d.wg.Add(1)
		go d.worker(ctx, chatID, q)
	}
	d.mu.Unlock()

	select {
	case q <- text:
	case <-ctx.Done():
	}
}

// Wait blocks until every worker has exited after ctx cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, chatID int64, q chan string) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-q:
			reply := d.handler(ctx, chatID, text)
			if reply != "" && d.reply != nil {
				d.reply(ctx, chatID, reply)
			}
		}
	}
}

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	d := NewDispatcher(handler, func(ctx context.Context, chatID int64, text string) {
		if err := t.SendWithRetry(ctx, chatID, text, 2); err != nil {
			log.Printf("[ERROR] send reply: %v", err)
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			d.Wait()
			log.Println("[INFO] Telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := update.Message.Chat.ID
			text := strings.TrimSpace(update.Message.Text)
			log.Printf("[INFO] received command from %d: %s", chatID, text)
			d.Dispatch(ctx, chatID, text)
		}
	}
}
