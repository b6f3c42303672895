package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"telegram-forwarder/internal/core/expr"
	"telegram-forwarder/internal/pkg/dotpath"
)

// EvaluationError — ошибка вычисления выражения поля.
type EvaluationError struct {
	Path string
	Expr string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate field %q (%s): %v", e.Path, e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Option — функциональная опция для Engine.
type Option func(*Engine)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine вычисляет поля спецификации и собирает документ.
type Engine struct {
	log *slog.Logger
}

// NewEngine создает Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build вычисляет поля строго по порядку: следующее выражение начинается
// только после завершения предыдущего. Ошибка выражения возвращается как
// *EvaluationError, конфликт путей — как dotpath.ErrPathConflict.
func (e *Engine) Build(ctx context.Context, spec *Spec, env expr.Env) (*dotpath.Document, error) {
	doc := dotpath.New()
	for _, entry := range spec.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := entry.program.Eval(ctx, env)
		if err != nil {
			return nil, &EvaluationError{Path: entry.Path, Expr: entry.Expr, Err: err}
		}
		if err := doc.Set(entry.Path, value); err != nil {
			return nil, fmt.Errorf("field %q: %w", entry.Path, err)
		}
	}
	e.log.DebugContext(ctx, "Document built", "fields", spec.Len())
	return doc, nil
}
