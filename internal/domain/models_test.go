package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChatType(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    ChatType
		wantErr bool
	}{
		{name: "группа", input: "group", want: ChatTypeGroup},
		{name: "канал в верхнем регистре", input: "CHANNEL", want: ChatTypeChannel},
		{name: "пробелы по краям", input: "  bot ", want: ChatTypeBot},
		{name: "contact", input: "contact", want: ChatTypeContact},
		{name: "user", input: "user", want: ChatTypeUser},
		{name: "неизвестный тип", input: "supergroup", wantErr: true},
		{name: "пустая строка", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseChatType(tc.input)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrConfiguration))
				assert.Equal(t, ChatTypeNone, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMessage_ChatID(t *testing.T) {
	msg := &Message{ID: 7, Chat: Peer{Kind: PeerChannel, ID: 1001}}
	assert.Equal(t, int64(1001), msg.ChatID())
	assert.Equal(t, "channel:1001", msg.Chat.String())
}
