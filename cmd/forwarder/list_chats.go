package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/core/services"
	"telegram-forwarder/internal/domain"
)

const maxNameWidth = 48

func listChatsCmd(opts *options) *cobra.Command {
	var types []string

	cmd := &cobra.Command{
		Use:   "list-chats",
		Short: "List dialogs of the enabled chat types with their IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			filter := a.filter
			if len(types) > 0 {
				parsed := make([]domain.ChatType, 0, len(types))
				for _, name := range types {
					t, err := domain.ParseChatType(name)
					if err != nil {
						return err
					}
					parsed = append(parsed, t)
				}
				filter = services.NewChatFilter(parsed, a.cfg.Telegram.AdditionalChats)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.listChats(ctx, os.Stdout, filter)
		},
	}
	cmd.Flags().StringSliceVar(&types, "types", nil, "list the given chat types (contact, user, bot, group, channel) instead of those from the config file")
	return cmd
}

func (a *app) listChats(ctx context.Context, w io.Writer, filter services.ChatFilter) error {
	return a.client.Run(ctx, func(ctx context.Context) error {
		dialogs, err := a.client.Dialogs(ctx)
		if err != nil {
			return fmt.Errorf("list dialogs: %w", err)
		}

		include := enabledChat(filter.Enabled)
		var rows []chatRow
		for _, d := range dialogs {
			if !include(d) {
				continue
			}
			peer, _ := entity.Peer(d)
			rows = append(rows, chatRow{id: peer.ID, name: entity.DisplayName(d), chatType: entity.Classify(d)})
		}
		_, err = io.WriteString(w, renderChats(rows))
		return err
	})
}

type chatRow struct {
	id       int64
	name     string
	chatType domain.ChatType
}

// renderChats выводит чаты таблицей с выравниванием по ширине символов.
func renderChats(rows []chatRow) string {
	idWidth, nameWidth := len("ID"), len("NAME")
	for _, r := range rows {
		idWidth = max(idWidth, len(strconv.FormatInt(r.id, 10)))
		nameWidth = max(nameWidth, min(runewidth.StringWidth(r.name), maxNameWidth))
	}

	var sb strings.Builder
	writeRow := func(id, name, chatType string) {
		sb.WriteString(runewidth.FillRight(id, idWidth))
		sb.WriteString("  ")
		sb.WriteString(runewidth.FillRight(runewidth.Truncate(name, maxNameWidth, "…"), nameWidth))
		sb.WriteString("  ")
		sb.WriteString(chatType)
		sb.WriteByte('\n')
	}

	writeRow("ID", "NAME", "TYPE")
	for _, r := range rows {
		writeRow(strconv.FormatInt(r.id, 10), r.name, string(r.chatType))
	}
	return sb.String()
}
