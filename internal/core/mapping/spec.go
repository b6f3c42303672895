// Package mapping строит выходной документ сообщения по набору
// пар "путь — выражение".
package mapping

import (
	"fmt"

	"telegram-forwarder/internal/core/expr"
	"telegram-forwarder/internal/pkg/dotpath"
)

// ContextFunctions — функции контекста, которые разрешено вызывать из выражений.
var ContextFunctions = []string{"display_name"}

// Entry — одно поле выходного документа.
type Entry struct {
	Path string
	Expr string

	program *expr.Program
}

// Program возвращает скомпилированное выражение поля.
func (e Entry) Program() *expr.Program {
	return e.program
}

// Spec — упорядоченный набор полей. Неизменяем после создания
// и может разделяться между горутинами.
type Spec struct {
	entries []Entry
}

// DefaultEntries описывает документ по умолчанию.
var DefaultEntries = []Entry{
	{Path: "id", Expr: "message.id"},
	{Path: "date", Expr: "message.date"},
	{Path: "sender", Expr: "sender"},
	{Path: "chat", Expr: "display_name(chat)"},
	{Path: "message", Expr: "message.text"},
	{Path: "media", Expr: "media.filename"},
}

// NewSpec компилирует выражения и проверяет пути. Любая ошибка —
// ошибка конфигурации.
func NewSpec(entries []Entry) (*Spec, error) {
	s := &Spec{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		if _, err := dotpath.Split(e.Path); err != nil {
			return nil, err
		}
		p, err := expr.Compile(e.Expr, expr.WithFunctions(ContextFunctions...))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Path, err)
		}
		e.program = p
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// DefaultSpec возвращает спецификацию документа по умолчанию.
func DefaultSpec() *Spec {
	s, err := NewSpec(DefaultEntries)
	if err != nil {
		panic(err)
	}
	return s
}

// Entries возвращает копию списка полей.
func (s *Spec) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len возвращает количество полей.
func (s *Spec) Len() int {
	return len(s.entries)
}
