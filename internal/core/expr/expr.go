// Package expr реализует небольшой язык выражений для вычисления полей
// выходного документа: селекторы полей, литералы, логические операторы,
// тернарный оператор и фиксированный набор функций.
//
// Выражение видит только переменные и функции, переданные в Env.
package expr

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"telegram-forwarder/internal/domain"
)

var (
	// ErrSyntax — ошибка разбора выражения.
	ErrSyntax = fmt.Errorf("%w: expression syntax", domain.ErrConfiguration)
	// ErrUnknownFunction — вызов функции, которой нет в белом списке.
	ErrUnknownFunction = fmt.Errorf("%w: unknown function", domain.ErrConfiguration)

	// ErrUndefined — обращение к переменной, которой нет в контексте.
	ErrUndefined = errors.New("undefined variable")
	// ErrType — операция не применима к значению.
	ErrType = errors.New("type mismatch")
)

// Func — функция, доступная выражениям. Аргументы уже вычислены.
type Func func(ctx context.Context, args []any) (any, error)

// Lazy — значение, которое вычисляется при первом обращении к нему.
// Позволяет выражениям выполнять ввод-вывод (например, получение отправителя).
type Lazy func(ctx context.Context) (any, error)

// Memo оборачивает Lazy так, что вычисление выполняется не более одного раза.
func Memo(l Lazy) Lazy {
	var (
		once sync.Once
		val  any
		err  error
	)
	return func(ctx context.Context) (any, error) {
		once.Do(func() { val, err = l(ctx) })
		return val, err
	}
}

// Env — контекст вычисления: переменные и функции.
type Env struct {
	Vars  map[string]any
	Funcs map[string]Func
}

// Program — скомпилированное выражение. Безопасно для конкурентного использования.
type Program struct {
	source string
	root   node
}

// CompileOption настраивает компиляцию.
type CompileOption func(*compileConfig)

type compileConfig struct {
	funcs map[string]struct{}
}

// WithFunctions разрешает вызывать функции контекста с указанными именами
// в дополнение к встроенным.
func WithFunctions(names ...string) CompileOption {
	return func(c *compileConfig) {
		for _, n := range names {
			c.funcs[n] = struct{}{}
		}
	}
}

// Compile разбирает выражение. Вызовы функций вне белого списка
// отклоняются на этапе компиляции.
func Compile(source string, opts ...CompileOption) (*Program, error) {
	cfg := &compileConfig{funcs: make(map[string]struct{}, len(builtins))}
	for name := range builtins {
		cfg.funcs[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(cfg)
	}

	root, err := parse(source, cfg.funcs)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Program{source: source, root: root}, nil
}

// MustCompile как Compile, но паникует при ошибке.
func MustCompile(source string, opts ...CompileOption) *Program {
	p, err := Compile(source, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// String возвращает исходный текст выражения.
func (p *Program) String() string {
	return p.source
}

// Eval вычисляет выражение в контексте env. Ленивые значения разрешаются
// последовательно, по мере обращения к ним.
func (p *Program) Eval(ctx context.Context, env Env) (any, error) {
	e := &evaluator{env: env}
	v, err := e.eval(ctx, p.root)
	if err != nil {
		return nil, err
	}
	return resolve(ctx, v)
}

// Builtins возвращает отсортированный список встроенных функций.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type evaluator struct {
	env Env
}

func (e *evaluator) eval(ctx context.Context, n node) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *identNode:
		v, ok := e.env.Vars[n.name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUndefined, n.name)
		}
		return resolve(ctx, v)

	case *selectorNode:
		x, err := e.eval(ctx, n.x)
		if err != nil {
			return nil, err
		}
		if x == nil {
			return nil, nil
		}
		m, ok := x.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: cannot select %q from %s", ErrType, n.field, typeName(x))
		}
		return resolve(ctx, m[n.field])

	case *indexNode:
		x, err := e.eval(ctx, n.x)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(ctx, n.index)
		if err != nil {
			return nil, err
		}
		return index(ctx, x, idx)

	case *callNode:
		fn, ok := e.env.Funcs[n.name]
		if !ok {
			fn, ok = builtins[n.name]
		}
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUndefined, n.name)
		}
		args := make([]any, 0, len(n.args))
		for _, a := range n.args {
			v, err := e.eval(ctx, a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		v, err := fn(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("%s(): %w", n.name, err)
		}
		return v, nil

	case *notNode:
		x, err := e.eval(ctx, n.x)
		if err != nil {
			return nil, err
		}
		return !Truthy(x), nil

	case *binaryNode:
		return e.evalBinary(ctx, n)

	case *condNode:
		c, err := e.eval(ctx, n.cond)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return e.eval(ctx, n.then)
		}
		return e.eval(ctx, n.orElse)
	}
	return nil, fmt.Errorf("unsupported node %T", n)
}

func (e *evaluator) evalBinary(ctx context.Context, n *binaryNode) (any, error) {
	l, err := e.eval(ctx, n.l)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokOr:
		if Truthy(l) {
			return l, nil
		}
		return e.eval(ctx, n.r)
	case tokAnd:
		if !Truthy(l) {
			return l, nil
		}
		return e.eval(ctx, n.r)
	}

	r, err := e.eval(ctx, n.r)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokEq:
		return Equal(l, r), nil
	case tokNeq:
		return !Equal(l, r), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", n.op)
}

func index(ctx context.Context, x, idx any) (any, error) {
	if x == nil {
		return nil, nil
	}
	switch c := x.(type) {
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key must be a string, got %s", ErrType, typeName(idx))
		}
		return resolve(ctx, c[key])
	case []any:
		i, ok := toInt(idx)
		if !ok {
			return nil, fmt.Errorf("%w: list index must be an integer, got %s", ErrType, typeName(idx))
		}
		if i < 0 {
			i += int64(len(c))
		}
		if i < 0 || i >= int64(len(c)) {
			return nil, nil
		}
		return resolve(ctx, c[i])
	case []string:
		i, ok := toInt(idx)
		if !ok {
			return nil, fmt.Errorf("%w: list index must be an integer, got %s", ErrType, typeName(idx))
		}
		if i < 0 {
			i += int64(len(c))
		}
		if i < 0 || i >= int64(len(c)) {
			return nil, nil
		}
		return c[i], nil
	}
	return nil, fmt.Errorf("%w: cannot index %s", ErrType, typeName(x))
}

func resolve(ctx context.Context, v any) (any, error) {
	if l, ok := v.(Lazy); ok {
		return l(ctx)
	}
	return v, nil
}

// Truthy определяет истинность значения: nil, false, ноль, пустые строки
// и коллекции, нулевое время ложны.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case time.Time:
		return !x.IsZero()
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// Equal сравнивает значения. Числа разных типов сравниваются по величине.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any, []string:
		return "list"
	case time.Time:
		return "time"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
