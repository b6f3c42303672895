package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/telegram"
)

const startDateLayout = "2006-01-02"

func importHistoryCmd(opts *options) *cobra.Command {
	var chats []string

	cmd := &cobra.Command{
		Use:   "import-history [start_date]",
		Short: "Import the history of enabled chats, oldest messages first",
		Long: `Imports chat history into the outputs. start_date (YYYY-MM-DD, UTC) limits
the import to messages sent on or after that date. Without --chats all dialogs
of the enabled chat types are imported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var since *time.Time
			if len(args) == 1 {
				d, err := parseStartDate(args[0])
				if err != nil {
					return err
				}
				since = &d
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.importHistory(ctx, telegram.HistoryOptions{Since: since, Chats: chats})
		},
	}
	cmd.Flags().StringSliceVar(&chats, "chats", nil, "only import the given chats (IDs from list-chats or @usernames)")
	return cmd
}

func parseStartDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(startDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

func (a *app) importHistory(ctx context.Context, opts telegram.HistoryOptions) error {
	dispatcher, closeSinks, err := a.newDispatcher(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	bgCtx, stopBackground := context.WithCancel(ctx)
	serverDone := a.startBackground(bgCtx, "import-history", dispatcher)
	defer func() {
		stopBackground()
		<-serverDone
	}()

	opts.Include = enabledChat(a.filter.Enabled)
	if opts.Since != nil {
		a.log.InfoContext(ctx, "Importing history", "since", opts.Since.Format(startDateLayout), "chats", opts.Chats)
	} else {
		a.log.InfoContext(ctx, "Importing full history", "chats", opts.Chats)
	}

	err = a.client.Run(ctx, func(ctx context.Context) error {
		return a.client.ImportHistory(ctx, opts, dispatcher.Dispatch)
	})
	if err != nil {
		return fmt.Errorf("import history: %w", err)
	}
	a.log.InfoContext(ctx, "Import finished", "stats", dispatcher.Stats())
	return nil
}

// enabledChat строит предикат отбора диалогов по фильтру чатов.
func enabledChat(enabled func(id int64, t domain.ChatType) bool) func(domain.Entity) bool {
	return func(e domain.Entity) bool {
		peer, ok := entity.Peer(e)
		if !ok {
			return false
		}
		return enabled(peer.ID, entity.Classify(e))
	}
}
