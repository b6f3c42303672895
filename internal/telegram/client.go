package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"telegram-forwarder/internal/cache"
	"telegram-forwarder/internal/domain"
	trm "telegram-forwarder/internal/pkg/term"
)

var (
	// ErrFloodWaitActive возвращается, когда клиент не может выполнить запрос из-за активного ограничения FLOOD_WAIT.
	ErrFloodWaitActive = errors.New("client is in flood wait")
	// ErrNotAuthorized возвращается, если сессия недействительна и интерактивный вход невозможен.
	ErrNotAuthorized = errors.New("telegram session is not authorized")
	// floodWaitRegex используется для парсинга длительности ожидания из сообщения об ошибке.
	floodWaitRegex = regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`)
)

// telegramAPI представляет необработанные методы API, которые мы используем.
type telegramAPI interface {
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	HelpGetConfig(ctx context.Context) (*tg.Config, error)
	MessagesGetHistory(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesGetDialogs(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesGetChats(ctx context.Context, id []int64) (tg.MessagesChatsClass, error)
}

// telegramAuth представляет клиент аутентификации.
type telegramAuth interface {
	auth.FlowClient
}

// telegramRunner определяет зависимости от клиента gotd.
// Это позволяет создавать моки в тестах.
type telegramRunner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() telegramAPI
	Auth() telegramAuth
	// RunUpdates получает обновления до отмены ctx.
	RunUpdates(ctx context.Context, selfID int64) error
	// Download сохраняет файл по указанному пути.
	Download(ctx context.Context, loc tg.InputFileLocationClass, path string) error
}

// prodRunner является оберткой вокруг реального *telegram.Client для удовлетворения интерфейса telegramRunner.
type prodRunner struct {
	*telegram.Client
	gaps       *updates.Manager
	downloader *downloader.Downloader
}

func (p *prodRunner) API() telegramAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() telegramAuth {
	return p.Client.Auth()
}

func (p *prodRunner) RunUpdates(ctx context.Context, selfID int64) error {
	return p.gaps.Run(ctx, p.Client.API(), selfID, updates.AuthOptions{})
}

func (p *prodRunner) Download(ctx context.Context, loc tg.InputFileLocationClass, path string) error {
	_, err := p.downloader.Download(p.Client.API(), loc).ToPath(ctx, path)
	return err
}

// authFlow определяет интерфейс для процесса аутентификации.
type authFlow interface {
	Run(ctx context.Context, client auth.FlowClient) error
}

// MessageHandler получает сообщения, пришедшие из Telegram.
type MessageHandler func(ctx context.Context, msg *domain.Message) error

// Client представляет собой потокобезопасный клиент для Telegram API,
// который инкапсулирует аутентификацию, обработку ошибок FLOOD_WAIT,
// получение обновлений и истории и кэширование сущностей.
type Client struct {
	id         string
	tgRunner   telegramRunner
	authFlow   authFlow
	isTerminal func(fd int) bool
	clock      func() time.Time
	log        *slog.Logger

	entities        *cache.Store[domain.Peer, domain.Entity]
	entityTTL       time.Duration
	refreshInterval time.Duration
	refreshMu       sync.Mutex
	lastRefresh     time.Time

	mu             sync.RWMutex
	unhealthyUntil time.Time
	handler        MessageHandler
}

// Config содержит конфигурацию для создания нового клиента.
type Config struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionPath string
	// EntityTTL — срок хранения сущностей в кэше. 0 — бессрочно.
	EntityTTL time.Duration
	// DialogRefreshInterval ограничивает частоту перезагрузки списка диалогов при промахе кэша.
	DialogRefreshInterval time.Duration
}

// ClientOption определяет функциональную опцию для конфигурации клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер для клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithEntityCache задает внешний кэш сущностей.
func WithEntityCache(s *cache.Store[domain.Peer, domain.Entity]) ClientOption {
	return func(c *Client) {
		if s != nil {
			c.entities = s
		}
	}
}

// NewClient создает новый экземпляр Client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		id:              uuid.NewString(),
		isTerminal:      func(fd int) bool { return term.IsTerminal(fd) },
		clock:           time.Now,
		log:             slog.Default(),
		entities:        cache.NewStore[domain.Peer, domain.Entity](),
		entityTTL:       cfg.EntityTTL,
		refreshInterval: cfg.DialogRefreshInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.handleUpdate(ctx, e, u.Message)
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.handleUpdate(ctx, e, u.Message)
	})
	dispatcher.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		return c.handleUpdate(ctx, e, u.Message)
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return c.handleUpdate(ctx, e, u.Message)
	})

	gaps := updates.New(updates.Config{Handler: dispatcher})
	tgClient := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  gaps,
	})

	c.tgRunner = &prodRunner{Client: tgClient, gaps: gaps, downloader: downloader.NewDownloader()}
	c.authFlow = auth.NewFlow(trm.NewTerminal(cfg.PhoneNumber), auth.SendCodeOptions{})
	return c
}

// ID возвращает уникальный идентификатор клиента.
func (c *Client) ID() string {
	return c.id
}

// Run подключается к Telegram, проверяет авторизацию и выполняет f.
// Соединение закрывается после возврата из f.
func (c *Client) Run(ctx context.Context, f func(ctx context.Context) error) error {
	c.log.InfoContext(ctx, "Connecting to telegram", "client_id", c.id)
	return c.tgRunner.Run(ctx, func(runCtx context.Context) error {
		if _, err := c.authorize(runCtx); err != nil {
			return err
		}
		return f(runCtx)
	})
}

// Listen получает новые и отредактированные сообщения и передает их handler
// до отмены ctx.
func (c *Client) Listen(ctx context.Context, handler MessageHandler) error {
	return c.tgRunner.Run(ctx, func(runCtx context.Context) error {
		self, err := c.authorize(runCtx)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.handler = handler
		c.mu.Unlock()

		c.log.InfoContext(runCtx, "Listening for new messages", "client_id", c.id, "self_id", self.ID)
		err = c.tgRunner.RunUpdates(runCtx, self.ID)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// authorize проверяет сессию и при необходимости запускает интерактивный вход.
func (c *Client) authorize(ctx context.Context) (*tg.User, error) {
	self, err := c.self(ctx)
	if err == nil {
		c.log.InfoContext(ctx, "Telegram client authenticated and ready", "client_id", c.id)
		return self, nil
	}

	// Если ошибка - это ожидаемое отсутствие сессии, логируем кратко.
	if strings.Contains(err.Error(), "AUTH_KEY_UNREGISTERED") {
		c.log.WarnContext(ctx, "Session check failed, attempting interactive auth", "client_id", c.id, "reason", "AUTH_KEY_UNREGISTERED")
	} else {
		c.log.WarnContext(ctx, "Session check failed, attempting interactive auth", "client_id", c.id, "error", err)
	}
	if !c.isTerminal(int(os.Stdout.Fd())) {
		return nil, fmt.Errorf("%w: cannot perform interactive auth in non-terminal: %w", ErrNotAuthorized, err)
	}
	if authErr := c.authFlow.Run(ctx, c.tgRunner.Auth()); authErr != nil {
		return nil, fmt.Errorf("interactive auth failed: %w", authErr)
	}
	c.log.InfoContext(ctx, "Interactive auth successful, session saved", "client_id", c.id)

	return c.self(ctx)
}

func (c *Client) self(ctx context.Context) (*tg.User, error) {
	users, err := c.tgRunner.API().UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			return user, nil
		}
	}
	return nil, fmt.Errorf("%w: empty self response", ErrNotAuthorized)
}

// handleUpdate запоминает сущности из обновления и передает сообщение обработчику.
// Ошибки обработчика логируются и не прерывают получение обновлений.
func (c *Client) handleUpdate(ctx context.Context, e tg.Entities, m tg.MessageClass) error {
	c.storeEntities(e)

	msg, ok := convertMessage(m)
	if !ok {
		c.log.DebugContext(ctx, "Ignoring non-message update")
		return nil
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return nil
	}

	if err := handler(ctx, msg); err != nil {
		c.log.WarnContext(ctx, "Message handler failed", "message_id", msg.ID, "chat", msg.Chat.String(), "error", err)
	}
	return nil
}

// Health проверяет работоспособность клиента.
// Если активен FLOOD_WAIT, возвращает ошибку.
// В противном случае выполняет легковесный запрос к API.
func (c *Client) Health(ctx context.Context) error {
	if err := c.checkHealthStatus(); err != nil {
		return err
	}

	return c.do(ctx, func(ctx context.Context) error {
		_, err := c.tgRunner.API().HelpGetConfig(ctx)
		return err
	})
}

// do выполняет запрос к API с учетом состояния FLOOD_WAIT.
func (c *Client) do(ctx context.Context, f func(ctx context.Context) error) error {
	if err := c.checkHealthStatus(); err != nil {
		c.log.WarnContext(ctx, "Client is unhealthy, request aborted", "error", err)
		return err
	}

	opErr := f(ctx)
	if opErr != nil {
		c.handleError(opErr)
	}
	return opErr
}

// checkHealthStatus проверяет, не находится ли клиент в состоянии FLOOD_WAIT.
func (c *Client) checkHealthStatus() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.unhealthyUntil.IsZero() && c.clock().Before(c.unhealthyUntil) {
		return fmt.Errorf("%w: active until %v", ErrFloodWaitActive, c.unhealthyUntil)
	}
	return nil
}

// handleError обрабатывает ошибки, ищет FLOOD_WAIT и обновляет состояние клиента.
func (c *Client) handleError(err error) {
	if waitDuration, ok := parseFloodWait(err); ok {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.unhealthyUntil = c.clock().Add(waitDuration)
		c.log.Warn("Client got FLOOD_WAIT, set unhealthy", "wait_duration", waitDuration, "until", c.unhealthyUntil)
	}
}

// parseFloodWait извлекает длительность ожидания из ошибки.
func parseFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	matches := floodWaitRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0, false
	}

	seconds, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}
