package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"telegrama/pkg/tgfmt"
)

const (
	DefaultAPIBaseURL = "https://api.telegram.org"
	DefaultParseMode  = "MarkdownV2"

	DriverHTTP    = "http"
	DriverTelebot = "telebot"
)

var (
	ErrMissingBotToken  = errors.New("bot token not configured")
	ErrMissingChatID    = errors.New("chat id not configured")
	ErrInvalidParseMode = errors.New("invalid parse mode")
)

// ClientOptions controls the outbound HTTP client.
type ClientOptions struct {
	Driver     string
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	RatePerSec int
}

// Settings is everything a delivery needs besides the message itself.
//
// It holds no references (no slices, maps or pointers), so a plain copy is a
// full snapshot.
type Settings struct {
	BotToken              string
	ChatID                string
	DefaultParseMode      string
	DisableWebPagePreview bool
	MessagePrefix         string
	MessageSuffix         string
	Formatting            tgfmt.Options
	Client                ClientOptions
}

// Default returns settings with every optional field at its default.
// BotToken and ChatID are left empty.
func Default() Settings {
	return Settings{
		DefaultParseMode:      DefaultParseMode,
		DisableWebPagePreview: true,
		Formatting:            tgfmt.DefaultOptions(),
		Client: ClientOptions{
			Driver:     DriverHTTP,
			BaseURL:    DefaultAPIBaseURL,
			Timeout:    30 * time.Second,
			RetryCount: 3,
			RetryDelay: time.Second,
			RatePerSec: 30,
		},
	}
}

// Affixes returns the configured message prefix and suffix.
func (s Settings) Affixes() tgfmt.Affixes {
	return tgfmt.Affixes{Prefix: s.MessagePrefix, Suffix: s.MessageSuffix}
}

// Validate checks the fields that must be right before anything is sent.
// The chat id is not required here because every send may override it.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.BotToken) == "" {
		errs = append(errs, ErrMissingBotToken)
	}
	if _, ok := tgfmt.ParseDialect(s.DefaultParseMode); !ok {
		errs = append(errs, fmt.Errorf("%w: %q (must be MarkdownV2, HTML or empty)", ErrInvalidParseMode, s.DefaultParseMode))
	}
	switch s.Client.Driver {
	case "", DriverHTTP, DriverTelebot:
	default:
		errs = append(errs, fmt.Errorf("unknown client driver %q", s.Client.Driver))
	}
	if s.Client.RetryCount < 0 {
		errs = append(errs, errors.New("client retry count must be >= 0"))
	}
	if s.Formatting.Truncate < 0 {
		errs = append(errs, errors.New("formatting truncate must be >= 0"))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to log.
func (s Settings) Redacted() Settings {
	if s.BotToken != "" {
		s.BotToken = RedactToken(s.BotToken)
	}
	return s
}

// RedactToken keeps the bot id part of a token ("123456:ABC...") and masks the secret.
func RedactToken(token string) string {
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		return "***"
	}
	return id + ":***"
}
