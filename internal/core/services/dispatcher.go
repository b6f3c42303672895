package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"telegram-forwarder/internal/core/entity"
	"telegram-forwarder/internal/core/expr"
	"telegram-forwarder/internal/core/mapping"
	"telegram-forwarder/internal/core/media"
	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/pkg/dotpath"
	"telegram-forwarder/internal/ports"
)

// ChatFilter решает, обрабатывать ли сообщения чата: чат включен, если его
// идентификатор явно перечислен или его тип входит в разрешенный набор.
type ChatFilter struct {
	types map[domain.ChatType]struct{}
	ids   map[int64]struct{}
}

// NewChatFilter создает фильтр из списка типов и дополнительных идентификаторов.
func NewChatFilter(types []domain.ChatType, ids []int64) ChatFilter {
	f := ChatFilter{
		types: make(map[domain.ChatType]struct{}, len(types)),
		ids:   make(map[int64]struct{}, len(ids)),
	}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

// Enabled проверяет чат по идентификатору и типу.
func (f ChatFilter) Enabled(id int64, t domain.ChatType) bool {
	if _, ok := f.ids[id]; ok {
		return true
	}
	if t == domain.ChatTypeNone {
		return false
	}
	_, ok := f.types[t]
	return ok
}

// Target — приемник и, при необходимости, его собственная спецификация документа.
type Target struct {
	Sink ports.Sink
	// Spec переопределяет общую спецификацию. nil — использовать общую.
	Spec *mapping.Spec
}

// Stats — счетчики обработки сообщений.
type Stats struct {
	Received     int64            `json:"received"`
	Filtered     int64            `json:"filtered"`
	Delivered    int64            `json:"delivered"`
	Failed       int64            `json:"failed"`
	Downloaded   int64            `json:"media_downloaded"`
	Translated   int64            `json:"translated"`
	SinkFailures map[string]int64 `json:"sink_failures"`
}

// DispatcherOption — функциональная опция для Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithChatFilter задает фильтр чатов. По умолчанию не включен ни один чат.
func WithChatFilter(f ChatFilter) DispatcherOption {
	return func(d *Dispatcher) {
		d.filter = f
	}
}

// WithMediaRules включает скачивание вложений по правилам.
func WithMediaRules(rs *media.RuleSet) DispatcherOption {
	return func(d *Dispatcher) {
		d.rules = rs
	}
}

// WithTranslator включает перевод текста сообщений.
func WithTranslator(t ports.Translator) DispatcherOption {
	return func(d *Dispatcher) {
		d.translator = t
	}
}

// WithStopOnSinkError прерывает доставку оставшимся приемникам после первой ошибки.
// По умолчанию ошибка одного приемника не мешает остальным.
func WithStopOnSinkError(stop bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.stopOnSinkError = stop
	}
}

// WithEngine задает движок построения документов.
func WithEngine(e *mapping.Engine) DispatcherOption {
	return func(d *Dispatcher) {
		if e != nil {
			d.engine = e
		}
	}
}

// Dispatcher обрабатывает сообщения по одному: фильтрация, скачивание
// вложения, перевод, построение документа и доставка приемникам по порядку.
type Dispatcher struct {
	source          ports.ChatSource
	spec            *mapping.Spec
	targets         []Target
	filter          ChatFilter
	rules           *media.RuleSet
	translator      ports.Translator
	engine          *mapping.Engine
	stopOnSinkError bool
	mkdirAll        func(path string, perm os.FileMode) error
	log             *slog.Logger

	mu sync.Mutex

	received   atomic.Int64
	filtered   atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	downloaded atomic.Int64
	translated atomic.Int64

	sinkMu       sync.Mutex
	sinkFailures map[string]int64
}

// NewDispatcher создает Dispatcher. spec — общая спецификация документа,
// nil означает спецификацию по умолчанию.
func NewDispatcher(source ports.ChatSource, spec *mapping.Spec, targets []Target, opts ...DispatcherOption) *Dispatcher {
	if spec == nil {
		spec = mapping.DefaultSpec()
	}
	d := &Dispatcher{
		source:       source,
		spec:         spec,
		targets:      targets,
		filter:       NewChatFilter(nil, nil),
		mkdirAll:     os.MkdirAll,
		log:          slog.Default(),
		sinkFailures: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.engine == nil {
		d.engine = mapping.NewEngine(mapping.WithLogger(d.log))
	}
	return d
}

// Dispatch обрабатывает одно сообщение. Отфильтрованное сообщение не является ошибкой.
// Ошибки конфигурации и вычисления прерывают только текущее сообщение.
// Ошибки приемников объединяются через errors.Join.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.received.Add(1)
	log := d.log.With(
		slog.String("dispatch_id", uuid.NewString()),
		slog.Int("message_id", msg.ID),
		slog.Int64("chat_id", msg.ChatID()),
	)

	chat, err := d.source.ResolveChat(ctx, msg)
	if err != nil {
		d.failed.Add(1)
		return fmt.Errorf("resolve chat %s: %w", msg.Chat, err)
	}
	chatType := entity.Classify(chat)
	if !d.filter.Enabled(msg.ChatID(), chatType) {
		d.filtered.Add(1)
		log.DebugContext(ctx, "Chat is not enabled, message dropped", "chat_type", chatType)
		return nil
	}

	downloaded, err := d.downloadMedia(ctx, log, msg, chatType)
	if err != nil {
		d.failed.Add(1)
		return err
	}

	translated := d.translate(ctx, log, msg)

	env := mapping.NewEnv(mapping.Context{
		Message:        msg,
		Chat:           chat,
		Sender:         d.senderSummary(log, msg),
		TranslatedText: translated,
		Media:          downloaded,
	})

	docs, err := d.buildDocuments(ctx, env)
	if err != nil {
		d.failed.Add(1)
		return fmt.Errorf("message %d: %w", msg.ID, err)
	}

	if err := d.deliver(ctx, log, msg, docs, translated, downloaded); err != nil {
		d.failed.Add(1)
		return err
	}

	d.delivered.Add(1)
	log.DebugContext(ctx, "Message delivered", "sinks", len(d.targets))
	return nil
}

func (d *Dispatcher) downloadMedia(ctx context.Context, log *slog.Logger, msg *domain.Message, chatType domain.ChatType) (*domain.DownloadedMedia, error) {
	if msg.Attachment == nil || d.rules == nil {
		return nil, nil
	}

	plan, skip, err := d.rules.Plan(msg, chatType)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}
	if skip != media.SkipNone {
		log.DebugContext(ctx, "Media download skipped", "reason", skip, "mime_type", msg.Attachment.MimeType)
		return nil, nil
	}

	path := plan.Filepath()
	if err := d.mkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.ErrorContext(ctx, "Failed to create download directory", "path", path, "error", err)
		return nil, nil
	}
	if err := d.source.Download(ctx, msg.Attachment, path); err != nil {
		log.ErrorContext(ctx, "Media download failed", "path", path, "error", err)
		return nil, nil
	}

	d.downloaded.Add(1)
	log.InfoContext(ctx, "Media downloaded", "path", path, "size", msg.Attachment.Size)
	return &domain.DownloadedMedia{Filepath: path, Filename: plan.Filename}, nil
}

func (d *Dispatcher) translate(ctx context.Context, log *slog.Logger, msg *domain.Message) *string {
	if d.translator == nil || msg.Text == "" {
		return nil
	}
	text, err := d.translator.Translate(ctx, msg.Text)
	if err != nil {
		log.ErrorContext(ctx, "Translation failed", "error", err)
		return nil
	}
	d.translated.Add(1)
	return &text
}

// senderSummary откладывает разрешение отправителя до первого обращения.
// Неразрешимый отправитель дает null, отменяется только по контексту.
func (d *Dispatcher) senderSummary(log *slog.Logger, msg *domain.Message) expr.Lazy {
	if msg.Sender == nil {
		return nil
	}
	return expr.Memo(func(ctx context.Context) (any, error) {
		sender, err := d.source.ResolveSender(ctx, msg)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("resolve sender %s: %w", msg.Sender, ctxErr)
			}
			log.WarnContext(ctx, "Sender is not resolvable, using null", "sender", msg.Sender.String(), "error", err)
			return nil, nil
		}
		return mapping.SenderSummary(sender), nil
	})
}

// buildDocuments строит по одному документу на каждую различную спецификацию
// до начала доставки, чтобы ошибка вычисления не приводила к частичной доставке.
func (d *Dispatcher) buildDocuments(ctx context.Context, env expr.Env) (map[*mapping.Spec]*dotpath.Document, error) {
	specs := []*mapping.Spec{d.spec}
	if len(d.targets) > 0 {
		specs = specs[:0]
		for _, t := range d.targets {
			specs = append(specs, d.specFor(t))
		}
	}

	docs := make(map[*mapping.Spec]*dotpath.Document, len(specs))
	for _, spec := range specs {
		if _, ok := docs[spec]; ok {
			continue
		}
		doc, err := d.engine.Build(ctx, spec, env)
		if err != nil {
			return nil, err
		}
		docs[spec] = doc
	}
	return docs, nil
}

func (d *Dispatcher) specFor(t Target) *mapping.Spec {
	if t.Spec != nil {
		return t.Spec
	}
	return d.spec
}

func (d *Dispatcher) deliver(ctx context.Context, log *slog.Logger, msg *domain.Message, docs map[*mapping.Spec]*dotpath.Document, translated *string, downloaded *domain.DownloadedMedia) error {
	var errs []error
	for _, t := range d.targets {
		delivery := &ports.Delivery{
			Message:        msg,
			Document:       docs[d.specFor(t)],
			TranslatedText: translated,
			Media:          downloaded,
		}
		if err := t.Sink.Write(ctx, delivery); err != nil {
			name := t.Sink.Name()
			log.ErrorContext(ctx, "Sink write failed", "sink", name, "error", err)
			d.recordSinkFailure(name)
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
			if d.stopOnSinkError {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) recordSinkFailure(name string) {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	d.sinkFailures[name]++
}

// Stats возвращает снимок счетчиков.
func (d *Dispatcher) Stats() Stats {
	d.sinkMu.Lock()
	failures := make(map[string]int64, len(d.sinkFailures))
	for k, v := range d.sinkFailures {
		failures[k] = v
	}
	d.sinkMu.Unlock()

	return Stats{
		Received:     d.received.Load(),
		Filtered:     d.filtered.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Downloaded:   d.downloaded.Load(),
		Translated:   d.translated.Load(),
		SinkFailures: failures,
	}
}
