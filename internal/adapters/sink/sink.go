// Package sink содержит приемники документов: файлы, Elasticsearch, Redis,
// TCP, SQL, XLSX и Telegram-бот.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"telegram-forwarder/internal/core/services"
	"telegram-forwarder/internal/pkg/config"
	"telegram-forwarder/internal/pkg/dotpath"
	"telegram-forwarder/internal/ports"
)

// ErrUnknownType возвращается для неподдерживаемого типа приемника.
var ErrUnknownType = errors.New("unknown output type")

// New создает приемник по конфигурации.
func New(ctx context.Context, o config.Output, log *slog.Logger) (ports.Sink, error) {
	log = log.With("sink", o.DisplayName())

	switch o.Type {
	case config.OutputFile:
		return NewFile(o.DisplayName(), o.Path)
	case config.OutputElasticsearch:
		return NewElasticsearch(o, log)
	case config.OutputRedis:
		return NewRedis(ctx, o)
	case config.OutputTCP:
		return NewTCP(o, log), nil
	case config.OutputSQL:
		return NewSQL(ctx, o)
	case config.OutputXLSX:
		return NewXLSX(o)
	case config.OutputTelegramBot:
		return NewTelegramBot(o, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, o.Type)
	}
}

// Targets создает приемники всех выходов конфигурации вместе с их
// собственными спецификациями документа. При ошибке уже созданные
// приемники закрываются.
func Targets(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]services.Target, error) {
	targets := make([]services.Target, 0, len(cfg.Outputs))
	for i, o := range cfg.Outputs {
		spec, err := config.OutputSpec(o)
		if err != nil {
			CloseAll(targets, log)
			return nil, fmt.Errorf("outputs[%d]: %w", i, err)
		}
		s, err := New(ctx, o, log)
		if err != nil {
			CloseAll(targets, log)
			return nil, fmt.Errorf("outputs[%d] (%s): %w", i, o.Type, err)
		}
		targets = append(targets, services.Target{Sink: s, Spec: spec})
		log.InfoContext(ctx, "Output configured", "sink", s.Name(), "type", o.Type, "own_output_map", spec != nil)
	}
	return targets, nil
}

// CloseAll закрывает приемники, ошибки логируются.
func CloseAll(targets []services.Target, log *slog.Logger) {
	for _, t := range targets {
		if err := t.Sink.Close(); err != nil {
			log.Error("Failed to close sink", "sink", t.Sink.Name(), "error", err)
		}
	}
}

// encodeLine кодирует документ в JSON-строку с переводом строки в конце.
func encodeLine(doc *dotpath.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(data, '\n'), nil
}
