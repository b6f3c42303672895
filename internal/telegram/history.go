package telegram

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gotd/td/tg"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/domain"
)

const (
	historyPageSize = 100
	dialogsPageSize = 100
)

// HistoryOptions задает параметры импорта истории.
type HistoryOptions struct {
	// Since — дата, начиная с которой импортируются сообщения. nil — с начала истории.
	Since *time.Time
	// Chats — ссылки на чаты (см. ResolveReference). Пусто — все диалоги.
	Chats []string
	// Include отбирает диалоги, когда Chats пуст. nil — все диалоги.
	Include func(domain.Entity) bool
}

// ImportHistory передает handler сообщения выбранных чатов от старых к новым.
// Ошибки обработчика логируются и не прерывают импорт.
func (c *Client) ImportHistory(ctx context.Context, opts HistoryOptions, handler MessageHandler) error {
	chats, err := c.historyChats(ctx, opts)
	if err != nil {
		return err
	}

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		peer, ok := entity.InputPeer(chat)
		if !ok {
			c.log.WarnContext(ctx, "Chat is not accessible, skipped", "chat", entity.DisplayName(chat))
			continue
		}

		c.log.InfoContext(ctx, "Importing chat history", "chat", entity.DisplayName(chat))
		n, err := c.history(ctx, peer, opts.Since, handler)
		if err != nil {
			return fmt.Errorf("import history of %q: %w", entity.DisplayName(chat), err)
		}
		c.log.InfoContext(ctx, "Chat history imported", "chat", entity.DisplayName(chat), "messages", n)
	}
	return nil
}

func (c *Client) historyChats(ctx context.Context, opts HistoryOptions) ([]domain.Entity, error) {
	if len(opts.Chats) > 0 {
		chats := make([]domain.Entity, 0, len(opts.Chats))
		for _, ref := range opts.Chats {
			chat, err := c.ResolveReference(ctx, ref)
			if err != nil {
				return nil, err
			}
			chats = append(chats, chat)
		}
		return chats, nil
	}

	dialogs, err := c.Dialogs(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Include == nil {
		return dialogs, nil
	}
	return slices.DeleteFunc(dialogs, func(e domain.Entity) bool { return !opts.Include(e) }), nil
}

// history обходит историю одного чата страницами от старых сообщений к новым.
func (c *Client) history(ctx context.Context, peer tg.InputPeerClass, since *time.Time, handler MessageHandler) (int, error) {
	req := &tg.MessagesGetHistoryRequest{
		Peer:      peer,
		Limit:     historyPageSize,
		AddOffset: -historyPageSize,
	}
	if since != nil {
		req.OffsetDate = int(since.Unix())
	} else {
		req.OffsetID = 1
	}

	lastID, total := 0, 0
	for {
		var res tg.MessagesMessagesClass
		err := c.do(ctx, func(ctx context.Context) error {
			r, err := c.tgRunner.API().MessagesGetHistory(ctx, req)
			res = r
			return err
		})
		if err != nil {
			return total, err
		}
		modified, ok := res.AsModified()
		if !ok {
			return total, nil
		}
		c.storeChats(modified.GetChats())
		c.storeUsers(modified.GetUsers())

		maxID := lastID
		var batch []*domain.Message
		for _, m := range modified.GetMessages() {
			maxID = max(maxID, m.GetID())
			msg, ok := convertMessage(m)
			if !ok || msg.ID <= lastID {
				continue
			}
			if since != nil && msg.Date.Before(*since) {
				continue
			}
			batch = append(batch, msg)
		}
		if maxID == lastID {
			return total, nil
		}
		slices.SortFunc(batch, func(a, b *domain.Message) int { return cmp.Compare(a.ID, b.ID) })

		for _, msg := range batch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := handler(ctx, msg); err != nil {
				c.log.WarnContext(ctx, "Message handler failed", "message_id", msg.ID, "chat", msg.Chat.String(), "error", err)
			}
			total++
		}

		lastID = maxID
		req.OffsetID = lastID + 1
		req.OffsetDate = 0
	}
}

// Dialogs возвращает все диалоги пользователя и заполняет кэш сущностей.
func (c *Client) Dialogs(ctx context.Context) ([]domain.Entity, error) {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogsPageSize,
	}

	var (
		result []domain.Entity
		seen   = make(map[domain.Peer]struct{})
	)
	for {
		var res tg.MessagesDialogsClass
		c.log.DebugContext(ctx, "Executing API call: MessagesGetDialogs", "offset_id", req.OffsetID)
		err := c.do(ctx, func(ctx context.Context) error {
			r, err := c.tgRunner.API().MessagesGetDialogs(ctx, req)
			res = r
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("get dialogs: %w", err)
		}
		modified, ok := res.AsModified()
		if !ok {
			break
		}
		c.storeChats(modified.GetChats())
		c.storeUsers(modified.GetUsers())

		dialogs := modified.GetDialogs()
		added := 0
		var last *tg.Dialog
		for _, d := range dialogs {
			dialog, ok := d.(*tg.Dialog)
			if !ok {
				continue
			}
			last = dialog
			peer, ok := convertPeer(dialog.Peer)
			if !ok {
				continue
			}
			if _, dup := seen[peer]; dup {
				continue
			}
			seen[peer] = struct{}{}
			if e, ok := c.entities.Get(peer); ok {
				result = append(result, e)
				added++
			}
		}

		if _, isSlice := res.(*tg.MessagesDialogsSlice); !isSlice || len(dialogs) < dialogsPageSize || last == nil || added == 0 {
			break
		}
		if err := c.advanceDialogsOffset(req, last, modified.GetMessages()); err != nil {
			c.log.WarnContext(ctx, "Dialogs pagination stopped", "error", err)
			break
		}
	}

	c.refreshMu.Lock()
	c.lastRefresh = c.clock()
	c.refreshMu.Unlock()
	return result, nil
}

func (c *Client) advanceDialogsOffset(req *tg.MessagesGetDialogsRequest, last *tg.Dialog, messages []tg.MessageClass) error {
	peer, _ := convertPeer(last.Peer)
	e, ok := c.entities.Get(peer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, peer)
	}
	inputPeer, ok := entity.InputPeer(e)
	if !ok {
		return fmt.Errorf("%w: no input peer for %s", ErrEntityNotFound, peer)
	}

	req.OffsetPeer = inputPeer
	req.OffsetID = last.TopMessage
	for _, m := range messages {
		if m.GetID() != last.TopMessage {
			continue
		}
		switch v := m.(type) {
		case *tg.Message:
			req.OffsetDate = v.Date
		case *tg.MessageService:
			req.OffsetDate = v.Date
		}
	}
	return nil
}
