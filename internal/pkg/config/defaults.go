package config

import "time"

// Default values for configuration.
const (
	// Telegram defaults
	DefaultSessionFile           = "~/.telegram-forwarder.session"
	DefaultDialogRefreshInterval = 1 * time.Minute

	// Server defaults
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 15 * time.Second

	// Cache defaults
	DefaultEntityTTL       = 60 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute

	// Translation defaults
	DefaultTranslationModel    = "gemini-2.0-flash"
	DefaultTranslationLanguage = "English"
	DefaultTranslationTimeout  = 30 * time.Second

	// Output defaults
	DefaultIndexFormat   = "telegram-%Y.%m.%d"
	DefaultOutputTimeout = 10 * time.Second
	DefaultSQLTable      = "messages"
	DefaultXLSXSheet     = "Messages"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// defaultConfig возвращает конфигурацию со значениями по умолчанию,
// поверх которой загружается файл.
func defaultConfig() *Config {
	return &Config{
		Telegram: Telegram{
			SessionFile:           DefaultSessionFile,
			DialogRefreshInterval: DefaultDialogRefreshInterval,
		},
		Translation: Translation{
			Model:          DefaultTranslationModel,
			TargetLanguage: DefaultTranslationLanguage,
			Timeout:        DefaultTranslationTimeout,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Cache: Cache{
			EntityTTL:       DefaultEntityTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
	}
}
