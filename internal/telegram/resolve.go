package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/domain"
)

var (
	// ErrEntityNotFound возвращается, если сущность не удалось найти ни в кэше, ни через API.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnsupportedLocation возвращается для вложений, не полученных из Telegram.
	ErrUnsupportedLocation = errors.New("unsupported file location")
)

// ResolveChat возвращает сущность чата сообщения.
func (c *Client) ResolveChat(ctx context.Context, msg *domain.Message) (domain.Entity, error) {
	return c.resolvePeer(ctx, msg.Chat)
}

// ResolveSender возвращает сущность отправителя или nil, если отправитель неизвестен.
func (c *Client) ResolveSender(ctx context.Context, msg *domain.Message) (domain.Entity, error) {
	if msg.Sender == nil {
		return nil, nil
	}
	return c.resolvePeer(ctx, *msg.Sender)
}

// Download скачивает вложение по указанному пути.
func (c *Client) Download(ctx context.Context, att *domain.Attachment, path string) error {
	loc, ok := att.Location.(tg.InputFileLocationClass)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedLocation, att.Location)
	}
	c.log.DebugContext(ctx, "Downloading file", "path", path, "size", att.Size)
	return c.do(ctx, func(ctx context.Context) error {
		return c.tgRunner.Download(ctx, loc, path)
	})
}

// ResolveReference находит чат по ссылке: "@username", "username" или числовой
// идентификатор. Положительный идентификатор без пометки ищется среди всех типов
// сущностей, отрицательный означает группу, префикс -100 — канал.
func (c *Client) ResolveReference(ctx context.Context, ref string) (domain.Entity, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty chat reference", ErrEntityNotFound)
	}
	if peer, ok := parsePeerID(ref); ok {
		if peer.Kind == domain.PeerUser {
			return c.resolveBareID(ctx, peer.ID)
		}
		return c.resolvePeer(ctx, peer)
	}

	username := strings.TrimPrefix(ref, "@")
	var resolved *tg.ContactsResolvedPeer
	c.log.DebugContext(ctx, "Executing API call: ContactsResolveUsername", "username", username)
	err := c.do(ctx, func(ctx context.Context) error {
		res, err := c.tgRunner.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
		resolved = res
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve username %q: %w", username, err)
	}

	c.storeChats(resolved.Chats)
	c.storeUsers(resolved.Users)
	peer, ok := convertPeer(resolved.Peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	if e, ok := c.entities.Get(peer); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
}

// parsePeerID разбирает числовой идентификатор в формате Bot API.
func parsePeerID(ref string) (domain.Peer, bool) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return domain.Peer{}, false
	}
	switch {
	case strings.HasPrefix(ref, "-100"):
		channelID, err := strconv.ParseInt(strings.TrimPrefix(ref, "-100"), 10, 64)
		if err != nil || channelID == 0 {
			return domain.Peer{Kind: domain.PeerChat, ID: -id}, true
		}
		return domain.Peer{Kind: domain.PeerChannel, ID: channelID}, true
	case id < 0:
		return domain.Peer{Kind: domain.PeerChat, ID: -id}, true
	default:
		return domain.Peer{Kind: domain.PeerUser, ID: id}, true
	}
}

// resolveBareID ищет сущность по положительному идентификатору без пометки типа,
// как его печатает list-chats: среди пользователей, каналов и обычных групп.
func (c *Client) resolveBareID(ctx context.Context, id int64) (domain.Entity, error) {
	candidates := []domain.Peer{
		{Kind: domain.PeerUser, ID: id},
		{Kind: domain.PeerChannel, ID: id},
		{Kind: domain.PeerChat, ID: id},
	}
	lookup := func() (domain.Entity, bool) {
		for _, p := range candidates {
			if e, ok := c.entities.Get(p); ok {
				return e, true
			}
		}
		return nil, false
	}

	if e, ok := lookup(); ok {
		return e, nil
	}
	if err := c.refreshDialogs(ctx); err != nil {
		return nil, fmt.Errorf("resolve %d: %w", id, err)
	}
	if e, ok := lookup(); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
}

func (c *Client) resolvePeer(ctx context.Context, peer domain.Peer) (domain.Entity, error) {
	if e, ok := c.entities.Get(peer); ok {
		return e, nil
	}

	if peer.Kind == domain.PeerChat {
		if err := c.fetchChat(ctx, peer.ID); err != nil {
			c.log.WarnContext(ctx, "Failed to fetch chat", "chat", peer.String(), "error", err)
		}
	} else if err := c.refreshDialogs(ctx); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", peer, err)
	}

	if e, ok := c.entities.Get(peer); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, peer)
}

// fetchChat загружает обычную группу: для нее не нужен access hash.
func (c *Client) fetchChat(ctx context.Context, id int64) error {
	return c.do(ctx, func(ctx context.Context) error {
		res, err := c.tgRunner.API().MessagesGetChats(ctx, []int64{id})
		if err != nil {
			return err
		}
		c.storeChats(res.GetChats())
		return nil
	})
}

// refreshDialogs перезагружает список диалогов не чаще refreshInterval.
func (c *Client) refreshDialogs(ctx context.Context) error {
	c.refreshMu.Lock()
	if !c.lastRefresh.IsZero() && c.clock().Sub(c.lastRefresh) < c.refreshInterval {
		c.refreshMu.Unlock()
		return nil
	}
	c.lastRefresh = c.clock()
	c.refreshMu.Unlock()

	c.log.DebugContext(ctx, "Entity cache miss, refreshing dialogs")
	_, err := c.Dialogs(ctx)
	return err
}

func (c *Client) storeEntities(e tg.Entities) {
	for _, u := range e.Users {
		c.storeEntity(u, u.Min)
	}
	for _, ch := range e.Chats {
		c.storeEntity(ch, false)
	}
	for _, ch := range e.Channels {
		c.storeEntity(ch, ch.Min)
	}
}

func (c *Client) storeChats(chats []tg.ChatClass) {
	for _, ch := range chats {
		partial := false
		if channel, ok := ch.(*tg.Channel); ok {
			partial = channel.Min
		}
		c.storeEntity(ch, partial)
	}
}

func (c *Client) storeUsers(users []tg.UserClass) {
	for _, u := range users {
		partial := false
		if user, ok := u.(*tg.User); ok {
			partial = user.Min
		}
		c.storeEntity(u, partial)
	}
}

// storeEntity кэширует сущность. Неполные (min) сущности не вытесняют полные.
func (c *Client) storeEntity(e domain.Entity, partial bool) {
	peer, ok := entity.Peer(e)
	if !ok {
		return
	}
	if partial {
		if _, exists := c.entities.Get(peer); exists {
			return
		}
	}
	c.entities.Put(peer, e, c.entityTTL)
}
