package alert

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramQueue = 32

type telegramMsg struct {
	text          string
	correlationID string
}

// Telegram forwards alerts to a Telegram chat. Messages are sent from a
// background goroutine so Show never waits on the network.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger Logger

	queue chan telegramMsg
	wg    sync.WaitGroup
	once  sync.Once
}

// NewTelegram connects to the Bot API with token and starts the sender.
func NewTelegram(token string, chatID int64, logger Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, logger), nil
}

// NewTelegramWithEndpoint is NewTelegram against a custom API endpoint
// format, e.g. "http://127.0.0.1:8081/bot%s/%s".
func NewTelegramWithEndpoint(token, endpoint string, client *http.Client, chatID int64, logger Logger) (*Telegram, error) {
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newTelegram(bot, chatID, logger), nil
}

func newTelegram(bot *tgbotapi.BotAPI, chatID int64, logger Logger) *Telegram {
	t := &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
		queue:  make(chan telegramMsg, telegramQueue),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Show queues the alert. When the queue is full the alert is dropped and
// logged.
func (t *Telegram) Show(title, body, correlationID string) {
	text := strings.TrimSpace(title)
	if b := strings.TrimSpace(body); b != "" {
		text += "\n" + b
	}
	select {
	case t.queue <- telegramMsg{text: text, correlationID: correlationID}:
	default:
		t.logf("telegram: queue full, dropping alert %s", correlationID)
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (t *Telegram) Close() {
	t.once.Do(func() { close(t.queue) })
	t.wg.Wait()
}

func (t *Telegram) run() {
	defer t.wg.Done()
	for m := range t.queue {
		msg := tgbotapi.NewMessage(t.chatID, m.text)
		if _, err := t.bot.Send(msg); err != nil {
			t.logf("telegram: sending alert %s: %v", m.correlationID, err)
		}
	}
}

func (t *Telegram) logf(format string, v ...any) {
	if t.logger != nil {
		t.logger.Printf(format, v...)
	}
}
