package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ncruces/go-strftime"
)

// builtins — белый список встроенных функций.
var builtins = map[string]Func{
	"coalesce": fnCoalesce,
	"lower":    stringFunc("lower", strings.ToLower),
	"upper":    stringFunc("upper", strings.ToUpper),
	"trim":     stringFunc("trim", strings.TrimSpace),
	"str":      fnStr,
	"len":      fnLen,
	"concat":   fnConcat,
	"join":     fnJoin,
	"strftime": fnStrftime,
	"unix":     fnUnix,
}

func fnCoalesce(_ context.Context, args []any) (any, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func stringFunc(name string, f func(string) string) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %s", ErrType, name, typeName(args[0]))
		}
		return f(s), nil
	}
}

func fnStr(_ context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	return Stringify(args[0]), nil
}

func fnLen(_ context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return int64(0), nil
	case string:
		return int64(utf8.RuneCountInString(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	case []any:
		return int64(len(x)), nil
	case []string:
		return int64(len(x)), nil
	}
	return nil, fmt.Errorf("%w: len of %s", ErrType, typeName(args[0]))
}

func fnConcat(_ context.Context, args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(Stringify(a))
	}
	return b.String(), nil
}

func fnJoin(_ context.Context, args []any) (any, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	sep, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: join separator must be a string", ErrType)
	}
	var parts []string
	switch x := args[0].(type) {
	case nil:
		return "", nil
	case []string:
		parts = x
	case []any:
		for _, v := range x {
			parts = append(parts, Stringify(v))
		}
	default:
		return nil, fmt.Errorf("%w: join expects a list, got %s", ErrType, typeName(args[0]))
	}
	return strings.Join(parts, sep), nil
}

func fnStrftime(_ context.Context, args []any) (any, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	t, ok := args[0].(time.Time)
	if !ok {
		return nil, fmt.Errorf("%w: strftime expects a time, got %s", ErrType, typeName(args[0]))
	}
	layout, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: strftime layout must be a string", ErrType)
	}
	return strftime.Format(layout, t), nil
}

func fnUnix(_ context.Context, args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	t, ok := args[0].(time.Time)
	if !ok {
		return nil, fmt.Errorf("%w: unix expects a time, got %s", ErrType, typeName(args[0]))
	}
	return t.Unix(), nil
}

func arity(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: expected %d argument(s), got %d", ErrType, n, len(args))
	}
	return nil
}

// Stringify приводит значение к строке: nil — пустая строка,
// время — RFC 3339, объекты и списки — JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
	return fmt.Sprint(v)
}
