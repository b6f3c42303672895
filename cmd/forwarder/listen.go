package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func listenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Listen for new and edited messages and write them to the outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.listen(ctx)
		},
	}
}

func (a *app) listen(ctx context.Context) error {
	dispatcher, closeSinks, err := a.newDispatcher(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	bgCtx, stopBackground := context.WithCancel(ctx)
	serverDone := a.startBackground(bgCtx, "listen", dispatcher)
	defer func() {
		stopBackground()
		<-serverDone
	}()

	a.log.InfoContext(ctx, "Listening for events")
	err = a.client.Listen(ctx, dispatcher.Dispatch)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.log.InfoContext(ctx, "Listener stopped", "stats", dispatcher.Stats())
	return err
}
