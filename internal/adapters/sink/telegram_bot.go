package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mattn/go-runewidth"

	"telegram-forwarder/internal/core/expr"
	applog "telegram-forwarder/internal/log"
	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/pkg/dotpath"
	"telegram-forwarder/internal/ports"
)

const (
	maxMessageWidth = 4000
	maxCaptionWidth = 1000
)

// botSender — часть tgbotapi.BotAPI, используемая приемником.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot пересылает документы в чат через Bot API: по строке "путь: значение"
// на поле и, по желанию, скачанное вложение.
type TelegramBot struct {
	name      string
	chatID    int64
	sendMedia bool
	api       botSender
	log       *slog.Logger
}

// NewTelegramBot авторизует бота по токену.
func NewTelegramBot(o config.Output, log *slog.Logger) (*TelegramBot, error) {
	if err := tgbotapi.SetLogger(&applog.TGBotAPIAdapter{Logger: log}); err != nil {
		return nil, fmt.Errorf("set bot api logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(o.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}
	log.Info("Authorized on account", slog.String("username", api.Self.UserName))

	return newTelegramBot(o, api, log), nil
}

func newTelegramBot(o config.Output, api botSender, log *slog.Logger) *TelegramBot {
	return &TelegramBot{
		name:      o.DisplayName(),
		chatID:    o.ChatID,
		sendMedia: o.SendMedia,
		api:       api,
		log:       log,
	}
}

func (b *TelegramBot) Name() string { return b.name }

func (b *TelegramBot) Write(ctx context.Context, d *ports.Delivery) error {
	text := renderText(d.Document)

	if b.sendMedia && d.Media != nil {
		msg := tgbotapi.NewDocument(b.chatID, tgbotapi.FilePath(d.Media.Filepath))
		msg.Caption = runewidth.Truncate(text, maxCaptionWidth, "…")
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send document: %w", err)
		}
		b.log.DebugContext(ctx, "Document sent to bot chat", "chat_id", b.chatID, "file", d.Media.Filename)
		return nil
	}

	if text == "" {
		return nil
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, runewidth.Truncate(text, maxMessageWidth, "…"))); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// renderText выводит поля документа строками "путь: значение", пустые поля пропускаются.
func renderText(doc *dotpath.Document) string {
	var sb strings.Builder
	for _, f := range doc.Flatten() {
		if f.Value == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(f.Path)
		sb.WriteString(": ")
		sb.WriteString(expr.Stringify(f.Value))
	}
	return sb.String()
}

func (b *TelegramBot) Close() error { return nil }
