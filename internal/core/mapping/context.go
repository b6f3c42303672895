package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/core/expr"
	"telegram-forwarder/internal/domain"
)

// Context — данные одного сообщения, из которых строится окружение выражений.
type Context struct {
	Message *domain.Message
	// Chat — уже разрешенная сущность чата.
	Chat domain.Entity
	// Sender вычисляет сводку об отправителе при первом обращении. nil — отправителя нет.
	Sender         expr.Lazy
	TranslatedText *string
	Media          *domain.DownloadedMedia
}

// NewEnv собирает окружение выражений. Окружение создается на каждое
// сообщение и не должно разделяться между сообщениями.
func NewEnv(c Context) expr.Env {
	vars := map[string]any{
		"message":         MessageVars(c.Message),
		"chat":            nilMap(entity.Summary(c.Chat)),
		"sender":          nil,
		"translated_text": nil,
		"media":           nil,
	}
	if c.Sender != nil {
		vars["sender"] = c.Sender
	}
	if c.TranslatedText != nil {
		vars["translated_text"] = *c.TranslatedText
	}
	if c.Media != nil {
		vars["media"] = map[string]any{
			"filepath": c.Media.Filepath,
			"filename": c.Media.Filename,
		}
	}

	return expr.Env{
		Vars: vars,
		Funcs: map[string]expr.Func{
			"display_name": displayName,
		},
	}
}

// MessageVars представляет сообщение в виде объекта для выражений.
func MessageVars(msg *domain.Message) map[string]any {
	if msg == nil {
		return nil
	}
	m := map[string]any{
		"id":         msg.ID,
		"date":       msg.Date.UTC(),
		"edit_date":  nil,
		"text":       msg.Text,
		"chat_id":    msg.ChatID(),
		"sender_id":  nil,
		"out":        msg.Out,
		"attachment": nil,
	}
	if !msg.EditDate.IsZero() {
		m["edit_date"] = msg.EditDate.UTC()
	}
	if msg.Sender != nil {
		m["sender_id"] = msg.Sender.ID
	}
	if a := msg.Attachment; a != nil {
		m["attachment"] = map[string]any{
			"kind":      string(a.Kind),
			"mime_type": a.MimeType,
			"size":      a.Size,
			"name":      a.Name,
		}
	}
	return m
}

// SenderSummary возвращает сводку об отправителе или nil.
// Для каналов и групп заголовок становится firstName, lastName отсутствует.
func SenderSummary(e domain.Entity) any {
	switch v := e.(type) {
	case *tg.User:
		return map[string]any{
			"username":  nilIfEmpty(v.Username),
			"firstName": nilIfEmpty(v.FirstName),
			"lastName":  nilIfEmpty(v.LastName),
		}
	case *tg.Channel:
		return map[string]any{
			"username":  nilIfEmpty(v.Username),
			"firstName": v.Title,
			"lastName":  nil,
		}
	case *tg.Chat:
		return map[string]any{
			"username":  nil,
			"firstName": v.Title,
			"lastName":  nil,
		}
	default:
		return nil
	}
}

// displayName принимает сводку чата или отправителя и возвращает отображаемое имя.
func displayName(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected 1 argument, got %d", expr.ErrType, len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case map[string]any:
		if name, ok := v["name"]; ok {
			return name, nil
		}
		first, _ := v["firstName"].(string)
		last, _ := v["lastName"].(string)
		return strings.TrimSpace(first + " " + last), nil
	}
	return nil, fmt.Errorf("%w: display_name of %T", expr.ErrType, args[0])
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilMap избегает типизированного nil внутри any.
func nilMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
