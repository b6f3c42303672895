package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/pkg/config"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramBot_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("текст документа", func(t *testing.T) {
		api := &fakeBot{}
		b := newTelegramBot(config.Output{Type: config.OutputTelegramBot, ChatID: -100}, api, discardLogger)

		require.NoError(t, b.Write(ctx, testDelivery(t, 1, map[string]any{"chat.title": "Team", "empty": nil})))

		require.Len(t, api.sent, 1)
		msg, ok := api.sent[0].(tgbotapi.MessageConfig)
		require.True(t, ok)
		assert.Equal(t, int64(-100), msg.ChatID)
		assert.Equal(t, "id: 1\ndate: 2024-03-15T10:20:30Z\nchat.title: Team", msg.Text)
	})

	t.Run("вложение отправляется документом", func(t *testing.T) {
		api := &fakeBot{}
		b := newTelegramBot(config.Output{Type: config.OutputTelegramBot, ChatID: 9, SendMedia: true}, api, discardLogger)

		d := testDelivery(t, 2, nil)
		d.Media = &domain.DownloadedMedia{Filepath: "/tmp/photo.jpg", Filename: "photo.jpg"}
		require.NoError(t, b.Write(ctx, d))

		require.Len(t, api.sent, 1)
		doc, ok := api.sent[0].(tgbotapi.DocumentConfig)
		require.True(t, ok)
		assert.Equal(t, tgbotapi.FilePath("/tmp/photo.jpg"), doc.File)
		assert.True(t, strings.HasPrefix(doc.Caption, "id: 2"))
	})

	t.Run("длинный текст обрезается", func(t *testing.T) {
		api := &fakeBot{}
		b := newTelegramBot(config.Output{ChatID: 1}, api, discardLogger)

		require.NoError(t, b.Write(ctx, testDelivery(t, 3, map[string]any{"text": strings.Repeat("a", 5000)})))

		msg := api.sent[0].(tgbotapi.MessageConfig)
		assert.Less(t, len(msg.Text), 4100)
		assert.True(t, strings.HasSuffix(msg.Text, "…"))
	})

	t.Run("ошибка отправки", func(t *testing.T) {
		boom := errors.New("forbidden")
		b := newTelegramBot(config.Output{ChatID: 1}, &fakeBot{err: boom}, discardLogger)

		assert.ErrorIs(t, b.Write(ctx, testDelivery(t, 4, nil)), boom)
	})
}
