package expr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/domain"
)

func testEnv() Env {
	return Env{
		Vars: map[string]any{
			"message": map[string]any{
				"id":   42,
				"text": "Hello",
				"date": time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC),
				"tags": []any{"a", "b", "c"},
			},
			"sender": map[string]any{
				"username":  "jdoe",
				"firstName": "John",
				"lastName":  nil,
			},
			"media":           nil,
			"translated_text": nil,
		},
		Funcs: map[string]Func{
			"display_name": func(_ context.Context, args []any) (any, error) {
				m, _ := args[0].(map[string]any)
				return m["firstName"], nil
			},
		},
	}
}

func TestProgram_Eval(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want any
	}{
		{name: "селектор", src: "message.id", want: 42},
		{name: "вложенный селектор", src: "sender.firstName", want: "John"},
		{name: "селектор по null", src: "media.filename", want: nil},
		{name: "индекс объекта", src: `message["text"]`, want: "Hello"},
		{name: "индекс списка", src: "message.tags[1]", want: "b"},
		{name: "отрицательный индекс", src: "message.tags[-1]", want: "c"},
		{name: "индекс за границей", src: "message.tags[10]", want: nil},
		{name: "строковый литерал", src: `'it\'s'`, want: "it's"},
		{name: "целое", src: "7", want: int64(7)},
		{name: "дробное", src: "1.5", want: 1.5},
		{name: "или возвращает первое истинное", src: "translated_text || message.text", want: "Hello"},
		{name: "и возвращает первое ложное", src: "media && media.filename", want: nil},
		{name: "отрицание", src: "!media", want: true},
		{name: "сравнение чисел разных типов", src: "message.id == 42", want: true},
		{name: "неравенство", src: `sender.username != "jdoe"`, want: false},
		{name: "тернарный", src: `media ? media.filename : "none"`, want: "none"},
		{name: "вложенный тернарный", src: `false ? 1 : true ? 2 : 3`, want: int64(2)},
		{name: "скобки", src: "!(media || false)", want: true},
		{name: "функция контекста", src: "display_name(sender)", want: "John"},
		{name: "coalesce", src: "coalesce(sender.lastName, sender.username)", want: "jdoe"},
		{name: "upper", src: "upper(message.text)", want: "HELLO"},
		{name: "lower от null", src: "lower(media)", want: nil},
		{name: "concat", src: `concat("#", message.id, "-", sender.username)`, want: "#42-jdoe"},
		{name: "join", src: `join(message.tags, ",")`, want: "a,b,c"},
		{name: "len строки в рунах", src: `len("привет")`, want: int64(6)},
		{name: "strftime", src: `strftime(message.date, "%Y/%m/%d %H:%M")`, want: "2024/03/05 07:08"},
		{name: "unix", src: "unix(message.date)", want: int64(1709622489)},
		{name: "str времени", src: "str(message.date)", want: "2024-03-05T07:08:09Z"},
		{name: "null литерал", src: "null", want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Compile(tc.src, WithFunctions("display_name"))
			require.NoError(t, err)
			got, err := p.Eval(context.Background(), testEnv())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "пустое выражение", src: "", wantErr: ErrSyntax},
		{name: "незакрытая скобка", src: "(message.id", wantErr: ErrSyntax},
		{name: "незакрытая строка", src: `"abc`, wantErr: ErrSyntax},
		{name: "лишний токен", src: "message.id message.text", wantErr: ErrSyntax},
		{name: "одиночный амперсанд", src: "a & b", wantErr: ErrSyntax},
		{name: "селектор без имени", src: "message.", wantErr: ErrSyntax},
		{name: "тернарный без двоеточия", src: "a ? b", wantErr: ErrSyntax},
		{name: "неизвестная функция", src: "exec('rm -rf /')", wantErr: ErrUnknownFunction},
		{name: "функция контекста не разрешена", src: "display_name(chat)", wantErr: ErrUnknownFunction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestProgram_EvalErrors(t *testing.T) {
	t.Run("неизвестная переменная", func(t *testing.T) {
		p := MustCompile("unknown.field")
		_, err := p.Eval(context.Background(), testEnv())
		assert.ErrorIs(t, err, ErrUndefined)
	})

	t.Run("селектор по строке", func(t *testing.T) {
		p := MustCompile("message.text.length")
		_, err := p.Eval(context.Background(), testEnv())
		assert.ErrorIs(t, err, ErrType)
	})

	t.Run("ошибка функции пробрасывается", func(t *testing.T) {
		boom := errors.New("boom")
		env := testEnv()
		env.Funcs["display_name"] = func(context.Context, []any) (any, error) { return nil, boom }
		p := MustCompile("display_name(sender)", WithFunctions("display_name"))
		_, err := p.Eval(context.Background(), env)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("неверная арность", func(t *testing.T) {
		p := MustCompile("upper()")
		_, err := p.Eval(context.Background(), testEnv())
		assert.ErrorIs(t, err, ErrType)
	})
}

func TestLazyValues(t *testing.T) {
	calls := 0
	env := testEnv()
	env.Vars["chat"] = Memo(func(context.Context) (any, error) {
		calls++
		return map[string]any{"name": "Team"}, nil
	})

	p := MustCompile(`concat(chat.name, "/", chat.name)`)
	got, err := p.Eval(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "Team/Team", got)
	assert.Equal(t, 1, calls)

	t.Run("не вычисляется без обращения", func(t *testing.T) {
		env := testEnv()
		env.Vars["chat"] = Lazy(func(context.Context) (any, error) {
			t.Fatal("lazy value must not be resolved")
			return nil, nil
		})
		_, err := MustCompile("message.id").Eval(context.Background(), env)
		require.NoError(t, err)
	})

	t.Run("ошибка ленивого значения", func(t *testing.T) {
		env := testEnv()
		boom := errors.New("resolve failed")
		env.Vars["chat"] = Lazy(func(context.Context) (any, error) { return nil, boom })
		_, err := MustCompile("chat.name").Eval(context.Background(), env)
		assert.ErrorIs(t, err, boom)
	})
}

func TestTruthyAndEqual(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(time.Time{}))
	assert.False(t, Truthy(map[string]any{}))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(int64(3)))
	assert.True(t, Truthy(struct{}{}))

	assert.True(t, Equal(1, 1.0))
	assert.False(t, Equal(1, "1"))
	ts := time.Now()
	assert.True(t, Equal(ts, ts.UTC()))
	assert.True(t, Equal(nil, nil))
}

func TestBuiltins(t *testing.T) {
	assert.Contains(t, Builtins(), "coalesce")
	assert.Contains(t, Builtins(), "strftime")
}
