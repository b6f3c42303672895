package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatType представляет классификацию чата.
// Пустое значение означает, что чат классифицировать не удалось.
type ChatType string

const (
	ChatTypeNone    ChatType = ""
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
	ChatTypeBot     ChatType = "bot"
	ChatTypeContact ChatType = "contact"
	ChatTypeUser    ChatType = "user"
)

// ChatTypes перечисляет все допустимые классификации.
var ChatTypes = []ChatType{ChatTypeGroup, ChatTypeChannel, ChatTypeBot, ChatTypeContact, ChatTypeUser}

// ParseChatType преобразует строку из конфигурации в ChatType.
func ParseChatType(s string) (ChatType, error) {
	t := ChatType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ChatTypes {
		if t == known {
			return t, nil
		}
	}
	return ChatTypeNone, fmt.Errorf("%w: unknown chat type %q", ErrConfiguration, s)
}

// MediaKind различает фотографии и прочие файлы.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindFile  MediaKind = "file"
)

// PeerKind определяет пространство идентификаторов Telegram.
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// Peer ссылается на пользователя, группу или канал.
type Peer struct {
	Kind PeerKind
	ID   int64
}

func (p Peer) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// Entity — сущность чата или отправителя в представлении источника
// (для Telegram это *tg.User, *tg.Chat, *tg.Channel и т.д.).
type Entity = any

// Attachment описывает вложение сообщения.
type Attachment struct {
	Kind     MediaKind
	MimeType string
	Size     int64
	// Name — исходное имя файла, может быть пустым.
	Name string
	// Location — непрозрачный дескриптор, по которому источник скачивает файл.
	Location any
}

// Message представляет входящее сообщение, независимое от транспорта.
type Message struct {
	ID       int
	Chat     Peer
	Sender   *Peer
	Date     time.Time
	EditDate time.Time
	Text     string
	Out      bool

	Attachment *Attachment
}

// ChatID возвращает идентификатор чата сообщения.
func (m *Message) ChatID() int64 {
	return m.Chat.ID
}

// DownloadedMedia описывает скачанное вложение.
type DownloadedMedia struct {
	Filepath string `json:"filepath"`
	Filename string `json:"filename"`
}
