package config

import (
	"fmt"
	"strings"

	logx "telegrama/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// fields for logging. Secrets (the bot token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.ChatID) != strings.TrimSpace(nt.ChatID) ||
		strPtr(ot.ParseMode) != strPtr(nt.ParseMode) ||
		boolPtr(ot.DisableWebPagePreview) != boolPtr(nt.DisableWebPagePreview) ||
		ot.MessagePrefix != nt.MessagePrefix ||
		ot.MessageSuffix != nt.MessageSuffix {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.chat_id_set", strings.TrimSpace(nt.ChatID) != ""),
			logx.String("telegram.parse_mode", strPtr(nt.ParseMode)),
		)
	}

	if formattingKey(oldCfg.Formatting) != formattingKey(newCfg.Formatting) {
		changed = append(changed, "formatting")
		attrs = append(attrs, logx.String("formatting", formattingKey(newCfg.Formatting)))
	}

	oc, nc := oldCfg.Client, newCfg.Client
	if oc.Driver != nc.Driver || oc.BaseURL != nc.BaseURL || oc.Timeout != nc.Timeout ||
		oc.RetryDelay != nc.RetryDelay || intPtr(oc.RetryCount) != intPtr(nc.RetryCount) ||
		intPtr(oc.RatePerSec) != intPtr(nc.RatePerSec) {
		changed = append(changed, "client")
		attrs = append(attrs,
			logx.String("client.driver", nc.Driver),
			logx.String("client.timeout", nc.Timeout),
			logx.Int("client.retry_count", intPtr(nc.RetryCount)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Metrics.Addr) != strings.TrimSpace(newCfg.Metrics.Addr) {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)))
	}

	return changed, attrs
}

func strPtr(p *string) string {
	if p == nil {
		return "<default>"
	}
	return *p
}

func boolPtr(p *bool) int {
	switch {
	case p == nil:
		return -1
	case *p:
		return 1
	default:
		return 0
	}
}

// intPtr maps nil to -1; real values are never negative after validation.
func intPtr(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func formattingKey(f *FormattingConfig) string {
	if f == nil {
		return "default"
	}
	return fmt.Sprintf("escape_markdown=%d obfuscate_emails=%d escape_html=%d truncate=%d",
		boolPtr(f.EscapeMarkdown), boolPtr(f.ObfuscateEmails), boolPtr(f.EscapeHTML), intPtr(f.Truncate))
}
