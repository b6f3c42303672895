// Package dotpath реализует упорядоченный документ, который строится
// присваиванием значений по путям вида "sender.firstName".
package dotpath

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"telegram-forwarder/internal/domain"
)

var (
	// ErrPathConflict возвращается при попытке записи через существующее листовое значение.
	ErrPathConflict = fmt.Errorf("%w: path conflict", domain.ErrConfiguration)
	// ErrInvalidPath возвращается для пустого пути или пустого сегмента.
	ErrInvalidPath = fmt.Errorf("%w: invalid path", domain.ErrConfiguration)
)

const separator = "."

// Document — узел дерева. Промежуточные узлы всегда *Document,
// порядок ключей совпадает с порядком первой записи.
type Document struct {
	fields *orderedmap.OrderedMap[string, any]
}

// Field — лист документа с полным путём.
type Field struct {
	Path  string
	Value any
}

// New создает пустой документ.
func New() *Document {
	return &Document{fields: orderedmap.New[string, any]()}
}

// Split разбирает путь на сегменты и проверяет, что ни один из них не пуст.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, separator)
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Set записывает значение по пути, создавая недостающие узлы.
// Повторная запись по тому же пути перезаписывает лист.
func (d *Document) Set(path string, value any) error {
	segments, err := Split(path)
	if err != nil {
		return err
	}

	node := d
	for i, seg := range segments[:len(segments)-1] {
		existing, ok := node.fields.Get(seg)
		if !ok {
			child := New()
			node.fields.Set(seg, child)
			node = child
			continue
		}
		child, ok := existing.(*Document)
		if !ok {
			return fmt.Errorf("%w: cannot set %q, %q already holds a value",
				ErrPathConflict, path, strings.Join(segments[:i+1], separator))
		}
		node = child
	}

	node.fields.Set(segments[len(segments)-1], value)
	return nil
}

// Get возвращает значение по пути или def, если путь не существует.
func (d *Document) Get(path string, def any) any {
	node, last, ok := d.parent(path)
	if !ok {
		return def
	}
	v, ok := node.fields.Get(last)
	if !ok {
		return def
	}
	return v
}

// Delete удаляет значение по пути. Возвращает false, если пути не было.
func (d *Document) Delete(path string) bool {
	node, last, ok := d.parent(path)
	if !ok {
		return false
	}
	_, ok = node.fields.Delete(last)
	return ok
}

func (d *Document) parent(path string) (*Document, string, bool) {
	segments, err := Split(path)
	if err != nil {
		return nil, "", false
	}
	node := d
	for _, seg := range segments[:len(segments)-1] {
		v, ok := node.fields.Get(seg)
		if !ok {
			return nil, "", false
		}
		child, ok := v.(*Document)
		if !ok {
			return nil, "", false
		}
		node = child
	}
	return node, segments[len(segments)-1], true
}

// Len возвращает количество ключей верхнего уровня.
func (d *Document) Len() int {
	return d.fields.Len()
}

// Keys возвращает ключи верхнего уровня в порядке вставки.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Flatten возвращает все листья документа в порядке обхода.
func (d *Document) Flatten() []Field {
	var out []Field
	d.flatten("", &out)
	return out
}

func (d *Document) flatten(prefix string, out *[]Field) {
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		path := pair.Key
		if prefix != "" {
			path = prefix + separator + pair.Key
		}
		if child, ok := pair.Value.(*Document); ok {
			child.flatten(path, out)
			continue
		}
		*out = append(*out, Field{Path: path, Value: pair.Value})
	}
}

// Clone возвращает глубокую копию узлов документа. Листья копируются по значению.
func (d *Document) Clone() *Document {
	c := New()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if child, ok := pair.Value.(*Document); ok {
			c.fields.Set(pair.Key, child.Clone())
			continue
		}
		c.fields.Set(pair.Key, pair.Value)
	}
	return c
}

// Map преобразует документ во вложенные map[string]any. Порядок ключей теряется.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		if child, ok := pair.Value.(*Document); ok {
			m[pair.Key] = child.Map()
			continue
		}
		m[pair.Key] = pair.Value
	}
	return m
}

// MarshalJSON сериализует документ как вложенный объект с сохранением порядка ключей.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.fields.MarshalJSON()
}
