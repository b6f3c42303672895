package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"telegram-forwarder/internal/domain"
)

// ErrPlaceholder — шаблон ссылается на неизвестный плейсхолдер или записан некорректно.
var ErrPlaceholder = fmt.Errorf("%w: filename placeholder", domain.ErrConfiguration)

// Vars — значения плейсхолдеров вида {group[key]}.
type Vars map[string]map[string]string

var placeholderRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\[([A-Za-z_][A-Za-z0-9_]*)\]$`)

// sampleVars содержит все известные ключи и используется для проверки шаблонов.
var sampleVars = FilenameVars(&domain.Message{
	ID:         1,
	Date:       time.Unix(0, 0),
	Attachment: &domain.Attachment{Name: "sample.bin"},
})

// ValidatePattern проверяет, что шаблон корректен и использует только известные плейсхолдеры.
func ValidatePattern(pattern string) error {
	_, err := Render(pattern, sampleVars)
	return err
}

// Render подставляет значения в шаблон. "{{" и "}}" выводят фигурные скобки.
func Render(pattern string, vars Vars) (string, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "{{"):
			b.WriteByte('{')
			i += 2
		case strings.HasPrefix(pattern[i:], "}}"):
			b.WriteByte('}')
			i += 2
		case pattern[i] == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d in %q", ErrPlaceholder, i, pattern)
			}
			v, err := lookup(pattern[i+1:i+end], vars)
			if err != nil {
				return "", fmt.Errorf("%w in %q", err, pattern)
			}
			b.WriteString(v)
			i += end + 1
		case pattern[i] == '}':
			return "", fmt.Errorf("%w: single '}' at offset %d in %q", ErrPlaceholder, i, pattern)
		default:
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String(), nil
}

func lookup(field string, vars Vars) (string, error) {
	m := placeholderRe.FindStringSubmatch(field)
	if m == nil {
		return "", fmt.Errorf("%w: malformed placeholder {%s}", ErrPlaceholder, field)
	}
	group, ok := vars[m[1]]
	if !ok {
		return "", fmt.Errorf("%w: unknown group %q", ErrPlaceholder, m[1])
	}
	v, ok := group[m[2]]
	if !ok {
		return "", fmt.Errorf("%w: unknown key %q in group %q", ErrPlaceholder, m[2], m[1])
	}
	return v, nil
}

// FilenameVars строит значения плейсхолдеров для вложения сообщения.
// Дата берется в UTC, все компоненты кроме года дополняются нулем до двух цифр.
func FilenameVars(msg *domain.Message) Vars {
	d := msg.Date.UTC()
	pad := func(n int) string { return fmt.Sprintf("%02d", n) }

	var att domain.Attachment
	if msg.Attachment != nil {
		att = *msg.Attachment
	}

	name := stem(att.Name)
	if name == "" {
		name = fmt.Sprintf("msg%d-%d", msg.ChatID(), msg.ID)
	}

	return Vars{
		"date": {
			"year":   strconv.Itoa(d.Year()),
			"month":  pad(int(d.Month())),
			"day":    pad(d.Day()),
			"hour":   pad(d.Hour()),
			"minute": pad(d.Minute()),
			"second": pad(d.Second()),
		},
		"file": {
			"name": name,
			"ext":  Extension(att.MimeType, att.Name),
		},
		"message": {
			"id":      strconv.Itoa(msg.ID),
			"chat_id": strconv.FormatInt(msg.ChatID(), 10),
		},
	}
}

// Extension возвращает расширение без точки: по MIME-типу, если он известен,
// иначе по имени файла в нижнем регистре.
func Extension(mimeType, name string) string {
	if mimeType != "" {
		if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
			return strings.TrimPrefix(m.Extension(), ".")
		}
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func stem(name string) string {
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
