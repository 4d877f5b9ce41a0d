// Package tgfmt prepares text for Telegram's sendMessage endpoint:
//   - MarkdownV2 escaping that keeps intentional bold, italic, code and link spans intact
//   - HTML entity escaping
//   - Email obfuscation, prefix/suffix and truncation passes
//
// Everything in this package is a pure function of its inputs and safe for
// concurrent use.
package tgfmt
