package ports

import (
	"context"

	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/pkg/dotpath"
)

// ChatSource определяет интерфейс источника сообщений: разрешение
// сущностей чата и отправителя и скачивание вложений.
type ChatSource interface {
	// ResolveChat возвращает сущность чата сообщения.
	ResolveChat(ctx context.Context, msg *domain.Message) (domain.Entity, error)
	// ResolveSender возвращает сущность отправителя или nil, если отправителя нет.
	ResolveSender(ctx context.Context, msg *domain.Message) (domain.Entity, error)
	// Download скачивает вложение по указанному пути.
	Download(ctx context.Context, att *domain.Attachment, path string) error
}

// Delivery — всё, что получает приемник для одного сообщения.
type Delivery struct {
	Message *domain.Message
	// Document разделяется между приемниками и не должен изменяться.
	Document       *dotpath.Document
	TranslatedText *string
	Media          *domain.DownloadedMedia
}

// Sink определяет интерфейс приемника документов.
type Sink interface {
	Name() string
	// Write доставляет документ. Ошибки не повторяются вызывающей стороной.
	Write(ctx context.Context, d *Delivery) error
	Close() error
}

// Translator определяет интерфейс внешнего сервиса перевода.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}
