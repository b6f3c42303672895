package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-forwarder/internal/core/expr"
	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/pkg/dotpath"
)

func testMessage() *domain.Message {
	return &domain.Message{
		ID:     17,
		Chat:   domain.Peer{Kind: domain.PeerChannel, ID: 500},
		Sender: &domain.Peer{Kind: domain.PeerUser, ID: 9},
		Date:   time.Date(2023, 11, 2, 3, 4, 5, 0, time.UTC),
		Text:   "hi there",
	}
}

func staticSender(v any) expr.Lazy {
	return func(context.Context) (any, error) { return v, nil }
}

func TestEngine_DefaultSpec(t *testing.T) {
	engine := NewEngine()
	msg := testMessage()

	env := NewEnv(Context{
		Message: msg,
		Chat:    &tg.Channel{ID: 500, Title: "Team", Megagroup: true},
		Sender:  staticSender(SenderSummary(&tg.User{ID: 9, FirstName: "John", LastName: "Doe", Username: "jdoe"})),
		Media:   &domain.DownloadedMedia{Filepath: "/tmp/a.jpg", Filename: "a.jpg"},
	})

	doc, err := engine.Build(context.Background(), DefaultSpec(), env)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "date", "sender", "chat", "message", "media"}, doc.Keys())
	assert.Equal(t, 17, doc.Get("id", nil))
	assert.Equal(t, msg.Date, doc.Get("date", nil))
	assert.Equal(t, "Team", doc.Get("chat", nil))
	assert.Equal(t, "hi there", doc.Get("message", nil))
	assert.Equal(t, "a.jpg", doc.Get("media", nil))
	assert.Equal(t, map[string]any{"username": "jdoe", "firstName": "John", "lastName": "Doe"}, doc.Get("sender", nil))
}

func TestEngine_DefaultSpecWithoutSenderAndMedia(t *testing.T) {
	env := NewEnv(Context{
		Message: testMessage(),
		Chat:    &tg.Chat{ID: 500, Title: "Group"},
	})

	doc, err := NewEngine().Build(context.Background(), DefaultSpec(), env)
	require.NoError(t, err)

	assert.Nil(t, doc.Get("sender", "absent"))
	assert.Nil(t, doc.Get("media", "absent"))

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":17,"date":"2023-11-02T03:04:05Z","sender":null,"chat":"Group","message":"hi there","media":null}`, string(data))
}

func TestEngine_CustomSpec(t *testing.T) {
	translated := "привет"
	spec, err := NewSpec([]Entry{
		{Path: "meta.id", Expr: "message.id"},
		{Path: "meta.chat.name", Expr: "display_name(chat)"},
		{Path: "meta.chat.type", Expr: "chat.type"},
		{Path: "text.original", Expr: "message.text"},
		{Path: "text.translated", Expr: "translated_text"},
		{Path: "author", Expr: `sender ? display_name(sender) : "unknown"`},
		{Path: "day", Expr: `strftime(message.date, "%Y-%m-%d")`},
	})
	require.NoError(t, err)

	env := NewEnv(Context{
		Message:        testMessage(),
		Chat:           &tg.Channel{ID: 500, Title: "News", Broadcast: true},
		Sender:         staticSender(SenderSummary(&tg.Channel{ID: 500, Title: "News", Username: "news"})),
		TranslatedText: &translated,
	})

	doc, err := NewEngine().Build(context.Background(), spec, env)
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"meta":{"id":17,"chat":{"name":"News","type":"channel"}},"text":{"original":"hi there","translated":"привет"},"author":"News","day":"2023-11-02"}`,
		string(data))
}

func TestEngine_Errors(t *testing.T) {
	t.Run("ошибка выражения помечается путем", func(t *testing.T) {
		spec, err := NewSpec([]Entry{
			{Path: "ok", Expr: "message.id"},
			{Path: "broken.field", Expr: "missing_var"},
		})
		require.NoError(t, err)

		_, err = NewEngine().Build(context.Background(), spec, NewEnv(Context{Message: testMessage()}))
		require.Error(t, err)

		var evalErr *EvaluationError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "broken.field", evalErr.Path)
		assert.ErrorIs(t, err, expr.ErrUndefined)
	})

	t.Run("ошибка ленивого отправителя", func(t *testing.T) {
		boom := errors.New("resolve sender failed")
		env := NewEnv(Context{
			Message: testMessage(),
			Sender:  func(context.Context) (any, error) { return nil, boom },
		})
		_, err := NewEngine().Build(context.Background(), DefaultSpec(), env)

		var evalErr *EvaluationError
		require.True(t, errors.As(err, &evalErr))
		assert.Equal(t, "sender", evalErr.Path)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("конфликт путей", func(t *testing.T) {
		spec, err := NewSpec([]Entry{
			{Path: "a", Expr: "1"},
			{Path: "a.b", Expr: "2"},
		})
		require.NoError(t, err)

		_, err = NewEngine().Build(context.Background(), spec, NewEnv(Context{Message: testMessage()}))
		assert.ErrorIs(t, err, dotpath.ErrPathConflict)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("некорректная спецификация", func(t *testing.T) {
		_, err := NewSpec([]Entry{{Path: "x", Expr: "system('ls')"}})
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		_, err = NewSpec([]Entry{{Path: "a..b", Expr: "1"}})
		assert.ErrorIs(t, err, dotpath.ErrInvalidPath)
	})

	t.Run("отмененный контекст", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewEngine().Build(ctx, DefaultSpec(), NewEnv(Context{Message: testMessage()}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_SequentialEvaluation(t *testing.T) {
	var order []string
	env := NewEnv(Context{Message: testMessage()})
	env.Funcs["display_name"] = func(_ context.Context, args []any) (any, error) {
		order = append(order, args[0].(string))
		return args[0], nil
	}

	spec, err := NewSpec([]Entry{
		{Path: "c", Expr: `display_name("first")`},
		{Path: "a", Expr: `display_name("second")`},
		{Path: "b", Expr: `display_name("third")`},
	})
	require.NoError(t, err)

	doc, err := NewEngine().Build(context.Background(), spec, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, []string{"c", "a", "b"}, doc.Keys())
}

func TestSenderSummary(t *testing.T) {
	assert.Nil(t, SenderSummary(nil))
	assert.Equal(t, map[string]any{"username": "chan", "firstName": "Channel", "lastName": nil},
		SenderSummary(&tg.Channel{Title: "Channel", Username: "chan"}))
	assert.Equal(t, map[string]any{"username": nil, "firstName": "Ann", "lastName": nil},
		SenderSummary(&tg.User{FirstName: "Ann"}))
}
