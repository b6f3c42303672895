// Package translator содержит реализации ports.Translator.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"telegram-forwarder/internal/pkg/config"
)

// ErrEmptyTranslation возвращается, если модель не вернула текст.
var ErrEmptyTranslation = errors.New("empty translation")

const instructionTemplate = "Translate the user's message into %s. " +
	"Reply with the translation only, keep formatting, links and emoji unchanged."

// generator — часть клиента genai, используемая переводчиком.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini переводит текст сообщений через Gemini API.
type Gemini struct {
	models  generator
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
	log     *slog.Logger
}

// NewGemini создает клиент Gemini по настройкам перевода.
func NewGemini(ctx context.Context, cfg config.Translation, log *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, log), nil
}

func newGemini(models generator, cfg config.Translation, log *slog.Logger) *Gemini {
	model := cfg.Model
	if model == "" {
		model = config.DefaultTranslationModel
	}
	lang := cfg.TargetLanguage
	if lang == "" {
		lang = config.DefaultTranslationLanguage
	}
	var temperature float32
	return &Gemini{
		models: models,
		model:  model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(fmt.Sprintf(instructionTemplate, lang), genai.RoleUser),
			Temperature:       &temperature,
		},
		timeout: cfg.Timeout,
		log:     log.With("component", "translator", "model", model),
	}
}

// Translate возвращает перевод текста.
func (g *Gemini) Translate(ctx context.Context, text string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(text), g.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	translated := strings.TrimSpace(resp.Text())
	if translated == "" {
		return "", ErrEmptyTranslation
	}
	g.log.DebugContext(ctx, "Text translated", "chars", len(text), "duration", time.Since(start))
	return translated, nil
}
