package config

import (
	"fmt"
	"os"
	"strings"

	"telegrama/internal/settings"
	logx "telegrama/pkg/logx"
)

// Environment variables that take precedence over the file.
const (
	EnvBotToken = "TELEGRAMA_BOT_TOKEN"
	EnvChatID   = "TELEGRAMA_CHAT_ID"
)

// ApplyEnv overlays environment overrides onto cfg. getenv defaults to os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvBotToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvChatID)); v != "" {
		c.Telegram.ChatID = v
	}
}

// ToSettings converts the file schema into delivery settings, filling
// omitted fields with defaults. It does not validate the result.
func (c *Config) ToSettings() (settings.Settings, error) {
	s := settings.Default()

	s.BotToken = strings.TrimSpace(c.Telegram.Token)
	s.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	if c.Telegram.ParseMode != nil {
		s.DefaultParseMode = strings.TrimSpace(*c.Telegram.ParseMode)
	}
	if c.Telegram.DisableWebPagePreview != nil {
		s.DisableWebPagePreview = *c.Telegram.DisableWebPagePreview
	}
	s.MessagePrefix = c.Telegram.MessagePrefix
	s.MessageSuffix = c.Telegram.MessageSuffix

	if f := c.Formatting; f != nil {
		if f.EscapeMarkdown != nil {
			s.Formatting.EscapeMarkdown = *f.EscapeMarkdown
		}
		if f.ObfuscateEmails != nil {
			s.Formatting.ObfuscateEmails = *f.ObfuscateEmails
		}
		if f.EscapeHTML != nil {
			s.Formatting.EscapeHTML = *f.EscapeHTML
		}
		if f.Truncate != nil {
			s.Formatting.Truncate = *f.Truncate
		}
	}

	cl := c.Client
	if d := strings.ToLower(strings.TrimSpace(cl.Driver)); d != "" {
		s.Client.Driver = d
	}
	if u := strings.TrimSpace(cl.BaseURL); u != "" {
		s.Client.BaseURL = strings.TrimRight(u, "/")
	}
	var err error
	if s.Client.Timeout, err = parseDuration("client.timeout", cl.Timeout, s.Client.Timeout); err != nil {
		return settings.Settings{}, err
	}
	if s.Client.RetryDelay, err = parseDuration("client.retry_delay", cl.RetryDelay, s.Client.RetryDelay); err != nil {
		return settings.Settings{}, err
	}
	if cl.RetryCount != nil {
		s.Client.RetryCount = *cl.RetryCount
	}
	if cl.RatePerSec != nil {
		if *cl.RatePerSec < 0 {
			return settings.Settings{}, fmt.Errorf("client.rate_per_sec: must be >= 0")
		}
		s.Client.RatePerSec = *cl.RatePerSec
	}
	return s, nil
}

// Logx converts the logging section into the logger config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
	}
}

// Validate checks that cfg converts into usable settings. It is the
// validator installed on the Manager for hot reloads.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	s, err := cfg.ToSettings()
	if err != nil {
		return err
	}
	return s.Validate()
}
