package notifier

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// messenger is the part of the bot API used for outgoing messages.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	AdminChatID int64

	bot     *tgbotapi.BotAPI
	api     messenger
	backoff time.Duration
}

// NewTelegramNotifier connects to the bot API with optional proxy support.
func NewTelegramNotifier(botToken string, adminChatID int64, proxyURL string) (*TelegramNotifier, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{
		Timeout:   60 * time.Second,
		Transport: transport,
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	log.Printf("[INFO] telegram bot authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{
		AdminChatID: adminChatID,
		bot:         bot,
		api:         bot,
		backoff:     time.Second,
	}, nil
}

// Send sends an HTML message to chatID.
func (t *TelegramNotifier) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, chatID int64, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(chatID, text); err != nil {
			lastErr = err
			if i == maxRetries {
				break
			}
			backoff := t.backoff * time.Duration(1<<uint(i))
			log.Printf("[WARN] Telegram send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// TelegramSink forwards data-source failure notices to the admin chat.
// Report never blocks: notices are queued and delivered by Run.
type TelegramSink struct {
	n     *TelegramNotifier
	queue chan string
}

// NewTelegramSink creates a sink with a bounded notice queue.
func NewTelegramSink(n *TelegramNotifier) *TelegramSink {
	return &TelegramSink{n: n, queue: make(chan string, 64)}
}

// Report logs msg and queues it for delivery.
func (s *TelegramSink) Report(msg string) {
	log.Printf("[ERROR] %s", msg)
	if s.n == nil || s.n.AdminChatID == 0 {
		return
	}
	select {
	case s.queue <- msg:
	default:
		log.Printf("[WARN] notice queue full, dropping: %s", msg)
	}
}

// Run delivers queued notices until ctx is cancelled.
func (s *TelegramSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.n.SendWithRetry(ctx, s.n.AdminChatID, FormatNotice(msg), 2); err != nil {
				log.Printf("[ERROR] deliver notice: %v", err)
			}
		}
	}
}
