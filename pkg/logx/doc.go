// Package logx configures telegrama's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Log lines never carry a bot token; callers log settings.Redacted() values.
package logx
