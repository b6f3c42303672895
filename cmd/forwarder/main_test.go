package main

import (
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/core/services"
	"telegram-forwarder/internal/domain"
)

func TestParseStartDate(t *testing.T) {
	d, err := parseStartDate("2023-07-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseStartDate("01.07.2023")
	assert.Error(t, err)
}

func TestEnabledChat(t *testing.T) {
	filter := services.NewChatFilter([]domain.ChatType{domain.ChatTypeChannel}, []int64{42})
	include := enabledChat(filter.Enabled)

	assert.True(t, include(&tg.Channel{ID: 1, Title: "News", Broadcast: true}))
	assert.False(t, include(&tg.Channel{ID: 2, Title: "Team", Megagroup: true}))
	assert.True(t, include(&tg.Chat{ID: 42, Title: "Extra"}))
	assert.False(t, include(&tg.ChatEmpty{ID: 3}))
}

func TestRenderChats(t *testing.T) {
	out := renderChats([]chatRow{
		{id: 1001, name: "Новости", chatType: domain.ChatTypeChannel},
		{id: 7, name: "Ann", chatType: domain.ChatTypeContact},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID    NAME     TYPE", lines[0])
	assert.Equal(t, "1001  Новости  channel", lines[1])
	assert.Equal(t, "7     Ann      contact", lines[2])
}

func TestRootCmd(t *testing.T) {
	cmd := rootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"listen", "import-history", "list-chats"}, names)

	t.Setenv("CONFIG_FILE", "/etc/forwarder.yml")
	assert.Equal(t, "/etc/forwarder.yml", defaultConfigPath())
}
