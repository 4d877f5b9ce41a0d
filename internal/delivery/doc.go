// Package delivery sends one text message to the Bot API, picking the
// parse mode, formatting the text for it and falling back to simpler parse
// modes when Telegram rejects the markup.
//
// Fallback order:
//
//   - a rejection that names the parse mode itself ("unsupported parse_mode")
//     is retried once as plain text;
//   - any other MarkdownV2 failure is retried as HTML, then as plain text;
//   - HTML and plain text failures are returned as-is.
//
// Formatting failures and cancelled contexts never fall back.
package delivery
