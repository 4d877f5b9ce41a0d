// Package main is the entry point for the telegrama CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"telegrama/internal/app"
	"telegrama/internal/delivery"
	"telegrama/internal/settings"
	"telegrama/pkg/tgfmt"
)

// Set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "telegrama",
		Short:         "Send formatted messages to Telegram chats",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (.json, .jsonc, .yaml)")
	root.AddCommand(sendCmd(), pipeCmd(), formatCmd(), configCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "telegrama %s (commit: %s)\n", version, commit)
		},
	}
}

// addOptionFlags registers the per-message override flags shared by send and pipe.
func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("opt", "o", nil, "Override as key=value (chat_id, parse_mode, disable_web_page_preview, escape_markdown, obfuscate_emails, escape_html, truncate)")
	cmd.Flags().String("chat-id", "", "Destination chat id (same as -o chat_id=...)")
	cmd.Flags().String("parse-mode", "", "MarkdownV2, HTML or plain (same as -o parse_mode=...)")
}

func optionsFromFlags(cmd *cobra.Command) ([]delivery.Option, error) {
	raw, _ := cmd.Flags().GetStringArray("opt")
	opts := make([]delivery.Option, 0, len(raw)+2)
	for _, r := range raw {
		o, err := delivery.ParseOption(r)
		if err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	if cmd.Flags().Changed("chat-id") {
		v, _ := cmd.Flags().GetString("chat-id")
		opts = append(opts, delivery.With(delivery.KeyChatID, v))
	}
	if cmd.Flags().Changed("parse-mode") {
		v, _ := cmd.Flags().GetString("parse-mode")
		opts = append(opts, delivery.With(delivery.KeyParseMode, parseModeFlag(v)))
	}
	return opts, nil
}

// parseModeFlag maps the CLI spelling "plain" to the empty parse mode.
func parseModeFlag(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "plain") {
		return ""
	}
	return v
}

func newApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	return app.New(app.Options{ConfigPath: path})
}

// messageArg joins args, or reads stdin when there are none.
func messageArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message (read from stdin when no arguments are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			msg, err := messageArg(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Send(cmd.Context(), msg, opts...)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), string(out.Result))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent as %s after %d attempt(s)\n", out.Dialect, out.Attempts)
			return nil
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the Bot API result object")
	return cmd
}

func pipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Send each line of stdin as a message, reloading the config on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Pipe(cmd.Context(), cmd.InOrStdin(), opts...)
		},
	}
	addOptionFlags(cmd)
	return cmd
}

func formatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format [message...]",
		Short: "Print a message as it would be sent, without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := messageArg(cmd, args)
			if err != nil {
				return err
			}

			s := settings.Default()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				a, err := app.New(app.Options{ConfigPath: path})
				if err != nil {
					return err
				}
				s = a.Settings()
				_ = a.Close()
			}

			mode := s.DefaultParseMode
			if cmd.Flags().Changed("parse-mode") {
				v, _ := cmd.Flags().GetString("parse-mode")
				mode = parseModeFlag(v)
			}
			d, ok := tgfmt.ParseDialect(mode)
			if !ok {
				return fmt.Errorf("%w: %q", settings.ErrInvalidParseMode, mode)
			}

			o := s.Formatting.ForDialect(d)
			if cmd.Flags().Changed("obfuscate-emails") {
				o.ObfuscateEmails, _ = cmd.Flags().GetBool("obfuscate-emails")
			}
			if cmd.Flags().Changed("truncate") {
				o.Truncate, _ = cmd.Flags().GetInt("truncate")
			}

			text, err := tgfmt.Format(msg, d, o, s.Affixes())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().String("parse-mode", "", "MarkdownV2, HTML or plain (default from config)")
	cmd.Flags().Bool("obfuscate-emails", false, "Shorten email addresses")
	cmd.Flags().Int("truncate", tgfmt.MaxMessageLength, "Maximum length in characters (0 disables)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Check(args[0], nil)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration is valid.\n")
			fmt.Fprintf(w, "  bot token:  %s\n", s.BotToken)
			fmt.Fprintf(w, "  chat id:    %s\n", orNone(s.ChatID))
			fmt.Fprintf(w, "  parse mode: %s\n", orNone(s.DefaultParseMode))
			fmt.Fprintf(w, "  driver:     %s (%s)\n", s.Client.Driver, s.Client.BaseURL)
			return nil
		},
	})
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
