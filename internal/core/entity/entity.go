// Package entity классифицирует сущности Telegram и извлекает из них
// отображаемые данные.
package entity

import (
	"strings"

	"github.com/gotd/td/tg"

	"telegram-forwarder/internal/domain"
)

// Classify определяет тип чата по сущности Telegram.
// Деактивированные группы и неизвестные сущности дают domain.ChatTypeNone.
func Classify(e domain.Entity) domain.ChatType {
	switch v := e.(type) {
	case *tg.Chat:
		if v.Deactivated {
			return domain.ChatTypeNone
		}
		return domain.ChatTypeGroup
	case *tg.Channel:
		if v.Megagroup {
			return domain.ChatTypeGroup
		}
		return domain.ChatTypeChannel
	case *tg.User:
		switch {
		case v.Bot:
			return domain.ChatTypeBot
		case v.Contact:
			return domain.ChatTypeContact
		default:
			return domain.ChatTypeUser
		}
	default:
		return domain.ChatTypeNone
	}
}

// DisplayName возвращает имя, под которым сущность показывается в клиенте:
// имя и фамилию для пользователя, заголовок для групп и каналов.
func DisplayName(e domain.Entity) string {
	switch v := e.(type) {
	case *tg.User:
		return strings.TrimSpace(v.FirstName + " " + v.LastName)
	case *tg.Chat:
		return v.Title
	case *tg.ChatForbidden:
		return v.Title
	case *tg.Channel:
		return v.Title
	case *tg.ChannelForbidden:
		return v.Title
	default:
		return ""
	}
}

// Username возвращает публичное имя сущности, если оно есть.
func Username(e domain.Entity) string {
	switch v := e.(type) {
	case *tg.User:
		return v.Username
	case *tg.Channel:
		return v.Username
	default:
		return ""
	}
}

// Peer возвращает ссылку на сущность. Второе значение false для неизвестных типов.
func Peer(e domain.Entity) (domain.Peer, bool) {
	switch v := e.(type) {
	case *tg.User:
		return domain.Peer{Kind: domain.PeerUser, ID: v.ID}, true
	case *tg.Chat:
		return domain.Peer{Kind: domain.PeerChat, ID: v.ID}, true
	case *tg.ChatForbidden:
		return domain.Peer{Kind: domain.PeerChat, ID: v.ID}, true
	case *tg.Channel:
		return domain.Peer{Kind: domain.PeerChannel, ID: v.ID}, true
	case *tg.ChannelForbidden:
		return domain.Peer{Kind: domain.PeerChannel, ID: v.ID}, true
	default:
		return domain.Peer{}, false
	}
}

// InputPeer строит tg.InputPeerClass для запросов к API.
func InputPeer(e domain.Entity) (tg.InputPeerClass, bool) {
	switch v := e.(type) {
	case *tg.User:
		return &tg.InputPeerUser{UserID: v.ID, AccessHash: v.AccessHash}, true
	case *tg.Chat:
		return &tg.InputPeerChat{ChatID: v.ID}, true
	case *tg.Channel:
		return &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}, true
	default:
		return nil, false
	}
}

// Summary — плоское представление чата для выражений маппинга.
func Summary(e domain.Entity) map[string]any {
	if e == nil {
		return nil
	}
	peer, _ := Peer(e)
	return map[string]any{
		"id":       peer.ID,
		"name":     DisplayName(e),
		"type":     string(Classify(e)),
		"username": nilIfEmpty(Username(e)),
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
