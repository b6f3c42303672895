// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"telegram-forwarder/internal/core/mapping"
	"telegram-forwarder/internal/core/media"
	"telegram-forwarder/internal/domain"
)

// Типы приемников.
const (
	OutputElasticsearch = "elasticsearch"
	OutputFile          = "file"
	OutputRedis         = "redis"
	OutputTCP           = "tcp"
	OutputSQL           = "sql"
	OutputXLSX          = "xlsx"
	OutputTelegramBot   = "telegram_bot"
)

// Telegram содержит параметры подключения и выбора чатов
type Telegram struct {
	APIID       int    `yaml:"api_id" validate:"gt=0"`
	APIHash     string `yaml:"api_hash" validate:"required"`
	PhoneNumber string `yaml:"phone_number"`
	SessionFile string `yaml:"session_file" validate:"required"`
	// ChatTypes — типы чатов, сообщения которых обрабатываются.
	ChatTypes []string `yaml:"chat_types" validate:"dive,oneof=group channel bot contact user"`
	// AdditionalChats — идентификаторы чатов, включенных независимо от типа.
	AdditionalChats       []int64       `yaml:"additional_chats"`
	DialogRefreshInterval time.Duration `yaml:"dialog_refresh_interval" validate:"gte=0"`
}

// MediaRule описывает одно правило скачивания вложений
type MediaRule struct {
	MediaKind    string   `yaml:"media_kind" validate:"omitempty,oneof=photo file"`
	MimeType     string   `yaml:"mime_type"`
	MimeTypeRe   string   `yaml:"mime_type_re"`
	ChatTypes    []string `yaml:"chat_types" validate:"dive,oneof=group channel bot contact user"`
	ChatIDs      []int64  `yaml:"chat_ids"`
	MaxSize      string   `yaml:"max_size"`
	DownloadPath string   `yaml:"download_path"`
	FilePattern  string   `yaml:"file_pattern"`
}

// Media содержит глобальные настройки скачивания и правила
type Media struct {
	DownloadPath string      `yaml:"download_path"`
	FilePattern  string      `yaml:"file_pattern"`
	Rules        []MediaRule `yaml:"rules" validate:"dive"`
}

// Output содержит конфигурацию одного приемника. Набор используемых полей зависит от типа.
type Output struct {
	Type string `yaml:"type" validate:"required,oneof=elasticsearch file redis tcp sql xlsx telegram_bot"`
	// Name отличает приемники одного типа в логах и статистике.
	Name string `yaml:"name"`
	// OutputMap переопределяет общий output_map для этого приемника.
	OutputMap yaml.MapSlice `yaml:"output_map"`

	// file, xlsx
	Path string `yaml:"path"`
	// elasticsearch, redis, tcp
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// elasticsearch
	IndexFormat string `yaml:"index_format"`
	APIKey      string `yaml:"api_key"`
	// redis
	DB  int    `yaml:"db" validate:"gte=0"`
	Key string `yaml:"key"`
	// sql
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite mysql"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	// xlsx
	Sheet string `yaml:"sheet"`
	// telegram_bot
	Token     string `yaml:"token"`
	ChatID    int64  `yaml:"chat_id"`
	SendMedia bool   `yaml:"send_media"`

	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// DisplayName возвращает имя приемника для логов.
func (o Output) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Type
}

// Translation содержит настройки перевода текста сообщений
type Translation struct {
	Provider       string        `yaml:"provider" validate:"omitempty,oneof=gemini"`
	APIKey         string        `yaml:"api_key" validate:"required_with=Provider"`
	Model          string        `yaml:"model"`
	TargetLanguage string        `yaml:"target_language"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Enabled сообщает, настроен ли перевод.
func (t Translation) Enabled() bool {
	return t.Provider != ""
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Server содержит конфигурацию HTTP-сервера состояния
type Server struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Cache содержит настройки кэша сущностей Telegram
type Cache struct {
	EntityTTL       time.Duration `yaml:"entity_ttl" validate:"gte=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

// Dispatch содержит политику доставки
type Dispatch struct {
	StopOnSinkError bool `yaml:"stop_on_sink_error"`
}

// Config содержит конфигурацию приложения
type Config struct {
	Telegram    Telegram      `yaml:"telegram"`
	Media       Media         `yaml:"media"`
	OutputMap   yaml.MapSlice `yaml:"output_map"`
	Outputs     []Output      `yaml:"outputs" validate:"dive"`
	Translation Translation   `yaml:"translation"`
	Logging     Logging       `yaml:"logging"`
	Server      Server        `yaml:"server"`
	Cache       Cache         `yaml:"cache"`
	Dispatch    Dispatch      `yaml:"dispatch"`
}

// LoadConfig загружает конфигурацию из YAML-файла, .env и переменных окружения.
// Переменные окружения имеют приоритет над файлом.
func LoadConfig(path string) (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFromYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла. Отсутствие файла не является ошибкой.
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: failed to parse YAML config: %w", domain.ErrConfiguration, err)
	}
	return nil
}

// applyEnv переопределяет секреты и параметры подключения из окружения.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TELEGRAM_API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: invalid TELEGRAM_API_ID: %w", domain.ErrConfiguration, err)
		}
		cfg.Telegram.APIID = id
	}
	cfg.Telegram.APIHash = getEnv("TELEGRAM_API_HASH", cfg.Telegram.APIHash)
	cfg.Telegram.PhoneNumber = getEnv("TELEGRAM_PHONE", cfg.Telegram.PhoneNumber)
	cfg.Telegram.SessionFile = getEnv("TELEGRAM_SESSION_FILE", cfg.Telegram.SessionFile)
	cfg.Translation.APIKey = getEnv("TRANSLATION_API_KEY", cfg.Translation.APIKey)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	return nil
}

func (c *Config) expandPaths() {
	c.Telegram.SessionFile = ExpandHome(c.Telegram.SessionFile)
	c.Media.DownloadPath = ExpandHome(c.Media.DownloadPath)
	for i := range c.Media.Rules {
		c.Media.Rules[i].DownloadPath = ExpandHome(c.Media.Rules[i].DownloadPath)
	}
	for i := range c.Outputs {
		c.Outputs[i].Path = ExpandHome(c.Outputs[i].Path)
	}
}

// ExpandHome заменяет ведущий "~" домашним каталогом пользователя.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	for i, o := range c.Outputs {
		if err := o.validate(); err != nil {
			return fmt.Errorf("%w: outputs[%d] (%s): %w", domain.ErrConfiguration, i, o.Type, err)
		}
	}

	// Выражения и правила компилируются при проверке, чтобы ошибки
	// обнаруживались до подключения к Telegram.
	if _, err := c.MappingSpec(); err != nil {
		return err
	}
	for i, o := range c.Outputs {
		if _, err := OutputSpec(o); err != nil {
			return fmt.Errorf("outputs[%d] (%s): %w", i, o.Type, err)
		}
	}
	if _, err := c.MediaRuleSet(); err != nil {
		return err
	}
	if _, err := c.ChatTypes(); err != nil {
		return err
	}
	return nil
}

func (o Output) validate() error {
	switch o.Type {
	case OutputFile, OutputXLSX:
		if o.Path == "" {
			return errors.New("path must be set")
		}
	case OutputRedis:
		if o.Key == "" {
			return errors.New("key must be set")
		}
	case OutputTCP:
		if o.Host == "" || o.Port == 0 {
			return errors.New("host and port must be set")
		}
	case OutputSQL:
		if o.Driver == "" || o.DSN == "" {
			return errors.New("driver and dsn must be set")
		}
	case OutputTelegramBot:
		if o.Token == "" || o.ChatID == 0 {
			return errors.New("token and chat_id must be set")
		}
	}
	return nil
}

// MappingSpec возвращает общую спецификацию документа. Без output_map
// используется спецификация по умолчанию.
func (c *Config) MappingSpec() (*mapping.Spec, error) {
	if len(c.OutputMap) == 0 {
		return mapping.DefaultSpec(), nil
	}
	entries, err := mapEntries(c.OutputMap)
	if err != nil {
		return nil, fmt.Errorf("output_map: %w", err)
	}
	spec, err := mapping.NewSpec(entries)
	if err != nil {
		return nil, fmt.Errorf("output_map: %w", err)
	}
	return spec, nil
}

// OutputSpec возвращает собственную спецификацию приемника или nil, если она не задана.
func OutputSpec(o Output) (*mapping.Spec, error) {
	if len(o.OutputMap) == 0 {
		return nil, nil
	}
	entries, err := mapEntries(o.OutputMap)
	if err != nil {
		return nil, fmt.Errorf("output_map: %w", err)
	}
	spec, err := mapping.NewSpec(entries)
	if err != nil {
		return nil, fmt.Errorf("output_map: %w", err)
	}
	return spec, nil
}

// mapEntries переводит упорядоченный YAML-словарь в записи спецификации.
func mapEntries(ms yaml.MapSlice) ([]mapping.Entry, error) {
	entries := make([]mapping.Entry, 0, len(ms))
	for _, item := range ms {
		path, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("%w: key %v is not a string", domain.ErrConfiguration, item.Key)
		}
		var expr string
		switch v := item.Value.(type) {
		case string:
			expr = v
		case int, int64, float64, bool:
			expr = fmt.Sprint(v)
		case nil:
			expr = "null"
		default:
			return nil, fmt.Errorf("%w: field %q: expression must be a string", domain.ErrConfiguration, path)
		}
		entries = append(entries, mapping.Entry{Path: path, Expr: expr})
	}
	return entries, nil
}

// MediaRuleSet компилирует правила скачивания вложений.
func (c *Config) MediaRuleSet() (*media.RuleSet, error) {
	rules := make([]media.RuleConfig, 0, len(c.Media.Rules))
	for i, r := range c.Media.Rules {
		types, err := parseChatTypes(r.ChatTypes)
		if err != nil {
			return nil, fmt.Errorf("media.rules[%d]: %w", i, err)
		}
		rules = append(rules, media.RuleConfig{
			MediaKind:  domain.MediaKind(r.MediaKind),
			MimeType:   r.MimeType,
			MimeTypeRe: r.MimeTypeRe,
			ChatTypes:  types,
			ChatIDs:    r.ChatIDs,
			MaxSize:    r.MaxSize,
			Settings: media.Settings{
				DownloadPath: r.DownloadPath,
				FilePattern:  r.FilePattern,
			},
		})
	}

	rs, err := media.NewRuleSet(media.Settings{
		DownloadPath: c.Media.DownloadPath,
		FilePattern:  c.Media.FilePattern,
	}, rules)
	if err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	return rs, nil
}

// ChatTypes возвращает включенные типы чатов.
func (c *Config) ChatTypes() ([]domain.ChatType, error) {
	types, err := parseChatTypes(c.Telegram.ChatTypes)
	if err != nil {
		return nil, fmt.Errorf("telegram.chat_types: %w", err)
	}
	return types, nil
}

func parseChatTypes(names []string) ([]domain.ChatType, error) {
	types := make([]domain.ChatType, 0, len(names))
	for _, name := range names {
		t, err := domain.ParseChatType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Secrets возвращает значения, которые нужно скрывать в логах.
func (c *Config) Secrets() []string {
	secrets := []string{c.Telegram.APIHash, c.Translation.APIKey}
	for _, o := range c.Outputs {
		secrets = append(secrets, o.Password, o.APIKey, o.Token)
	}
	return secrets
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
