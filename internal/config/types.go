package config

// Config is the on-disk configuration file.
//
// Pointer fields distinguish "omitted" (keep the built-in default) from an
// explicit zero value.
type Config struct {
	Telegram   TelegramConfig    `json:"telegram"`
	Formatting *FormattingConfig `json:"formatting,omitempty"`
	Client     ClientConfig      `json:"client"`
	Logging    LoggingConfig     `json:"logging"`
	Metrics    MetricsConfig     `json:"metrics"`
}

type TelegramConfig struct {
	// Token is the bot token (do not log). TELEGRAMA_BOT_TOKEN overrides it.
	Token string `json:"token"`
	// ChatID is the default destination. TELEGRAMA_CHAT_ID overrides it.
	ChatID string `json:"chat_id"`
	// ParseMode is "MarkdownV2", "HTML" or "" (plain). Default: MarkdownV2.
	ParseMode             *string `json:"parse_mode,omitempty"`
	DisableWebPagePreview *bool   `json:"disable_web_page_preview,omitempty"`
	MessagePrefix         string  `json:"message_prefix,omitempty"`
	MessageSuffix         string  `json:"message_suffix,omitempty"`
}

// FormattingConfig holds the default formatting options.
//
// Defaults (when fields are omitted):
//   - escape_markdown: true
//   - obfuscate_emails: false
//   - escape_html: false
//   - truncate: 4096 (0 disables)
type FormattingConfig struct {
	EscapeMarkdown  *bool `json:"escape_markdown,omitempty"`
	ObfuscateEmails *bool `json:"obfuscate_emails,omitempty"`
	EscapeHTML      *bool `json:"escape_html,omitempty"`
	Truncate        *int  `json:"truncate,omitempty"`
}

// ClientConfig controls the Bot API transport.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ClientConfig struct {
	// Driver is "http" (default) or "telebot".
	Driver     string `json:"driver,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RetryCount *int   `json:"retry_count,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	RatePerSec *int   `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the optional Prometheus endpoint (pipe mode only).
//
// Security note: prefer binding to localhost (e.g. "127.0.0.1:9464").
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
}
