package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"telegram-forwarder/internal/adapters/sink"
	"telegram-forwarder/internal/adapters/translator"
	"telegram-forwarder/internal/cache"
	"telegram-forwarder/internal/core/services"
	"telegram-forwarder/internal/domain"
	applog "telegram-forwarder/internal/log"
	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/server"
	"telegram-forwarder/internal/telegram"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options — глобальные флаги командной строки.
type options struct {
	configPath string
	debug      bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "telegram-forwarder",
		Short:        "Forward Telegram chat messages to multiple outputs in realtime",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "path to the config file")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "print debug output")

	cmd.AddCommand(listenCmd(opts), importHistoryCmd(opts), listChatsCmd(opts))
	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "config.yml"
}

// app содержит зависимости, общие для всех режимов.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	entities *cache.Store[domain.Peer, domain.Entity]
	client   *telegram.Client
	filter   services.ChatFilter
}

// newApp загружает конфигурацию, создает логгер и клиент Telegram.
func newApp(opts *options) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if opts.debug {
		level = "debug"
	}
	logger, err := applog.New(os.Stderr, cfg.Logging.Format, level, cfg.Secrets()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	types, err := cfg.ChatTypes()
	if err != nil {
		return nil, err
	}

	entities := cache.NewStore[domain.Peer, domain.Entity]()
	client := telegram.NewClient(telegram.Config{
		APIID:                 cfg.Telegram.APIID,
		APIHash:               cfg.Telegram.APIHash,
		PhoneNumber:           cfg.Telegram.PhoneNumber,
		SessionPath:           cfg.Telegram.SessionFile,
		EntityTTL:             cfg.Cache.EntityTTL,
		DialogRefreshInterval: cfg.Telegram.DialogRefreshInterval,
	}, telegram.WithLogger(logger), telegram.WithEntityCache(entities))

	return &app{
		cfg:      cfg,
		log:      logger,
		entities: entities,
		client:   client,
		filter:   services.NewChatFilter(types, cfg.Telegram.AdditionalChats),
	}, nil
}

// signalContext возвращает контекст, отменяемый по SIGINT или SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// newDispatcher создает приемники и Dispatcher. Возвращаемая функция закрывает приемники.
func (a *app) newDispatcher(ctx context.Context) (*services.Dispatcher, func(), error) {
	spec, err := a.cfg.MappingSpec()
	if err != nil {
		return nil, nil, err
	}
	rules, err := a.cfg.MediaRuleSet()
	if err != nil {
		return nil, nil, err
	}

	targets, err := sink.Targets(ctx, a.cfg, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create outputs: %w", err)
	}
	closeSinks := func() { sink.CloseAll(targets, a.log) }

	dispatcherOpts := []services.DispatcherOption{
		services.WithLogger(a.log),
		services.WithChatFilter(a.filter),
		services.WithMediaRules(rules),
		services.WithStopOnSinkError(a.cfg.Dispatch.StopOnSinkError),
	}
	if a.cfg.Translation.Enabled() {
		tr, err := translator.NewGemini(ctx, a.cfg.Translation, a.log)
		if err != nil {
			closeSinks()
			return nil, nil, err
		}
		dispatcherOpts = append(dispatcherOpts, services.WithTranslator(tr))
	}

	return services.NewDispatcher(a.client, spec, targets, dispatcherOpts...), closeSinks, nil
}

// startBackground запускает очистку кэша и, если включен, сервер состояния.
// Возвращаемый канал закрывается после остановки сервера.
func (a *app) startBackground(ctx context.Context, mode string, d *services.Dispatcher) <-chan struct{} {
	a.entities.StartCleanupTicker(ctx, a.cfg.Cache.CleanupInterval)

	done := make(chan struct{})
	if !a.cfg.Server.Enabled {
		close(done)
		return done
	}

	srv := server.New(a.cfg, mode, a.client, d,
		server.WithLogger(a.log),
		server.WithCacheSize(a.entities.Len),
	)
	go func() {
		defer close(done)
		if err := srv.Run(ctx, a.cfg.Server.ShutdownTimeout); err != nil {
			a.log.Error("Status server error", "error", err)
		}
	}()
	return done
}
