package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"telegrama/internal/eventbus"
	"telegrama/internal/metrics"
	"telegrama/internal/settings"
	"telegrama/internal/transport"
	logx "telegrama/pkg/logx"
	"telegrama/pkg/tgfmt"
)

// Event types published on the bus.
const (
	EventAttempt  = "delivery.attempt"
	EventFallback = "delivery.fallback"
)

// AttemptEvent is the payload of EventAttempt.
type AttemptEvent struct {
	Dialect  string        `json:"dialect"`
	Attempt  int           `json:"attempt"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FallbackEvent is the payload of EventFallback.
type FallbackEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Outcome is the result of the last round trip of a Send.
type Outcome struct {
	OK          bool
	Description string
	Result      json.RawMessage
	// Dialect is the parse mode of the last attempt.
	Dialect  tgfmt.Dialect
	Attempts int
}

// Deliverer sends messages using the settings in its Store.
// It is safe for concurrent use; each Send is independent.
type Deliverer struct {
	store   *settings.Store
	tr      transport.Transport
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Delivery
}

func New(store *settings.Store, tr transport.Transport, log logx.Logger) *Deliverer {
	return &Deliverer{
		store: store,
		tr:    tr,
		log:   log.With(logx.String("comp", "delivery")),
	}
}

// SetEventBus publishes attempt and fallback events on bus.
func (d *Deliverer) SetEventBus(bus eventbus.Bus) { d.bus = bus }

// SetMetrics records attempts, fallbacks and sends in m.
func (d *Deliverer) SetMetrics(m *metrics.Delivery) { d.metrics = m }

// call is everything resolved for one Send.
type call struct {
	message        string
	token          string
	chatID         string
	disablePreview bool
	affixes        tgfmt.Affixes
	base           tgfmt.Options
	ov             overrides
	attempts       int
}

// SendPairs is Send with options given as ordered key/value pairs.
func (d *Deliverer) SendPairs(ctx context.Context, message string, pairs [][2]string) (Outcome, error) {
	opts := make([]Option, 0, len(pairs))
	for _, p := range pairs {
		opts = append(opts, Option{Key: p[0], Value: p[1]})
	}
	return d.Send(ctx, message, opts...)
}

// Send formats message and submits it, falling back to simpler parse modes
// as described in the package doc. The returned Outcome reflects the last
// attempt and is meaningful even when err is non-nil.
func (d *Deliverer) Send(ctx context.Context, message string, opts ...Option) (Outcome, error) {
	out, err := d.send(ctx, message, opts)
	d.metrics.ObserveSend(resultOf(err))
	return out, err
}

func (d *Deliverer) send(ctx context.Context, message string, opts []Option) (Outcome, error) {
	s := d.store.Snapshot()
	ov := parseOverrides(opts)

	c := &call{
		message:        message,
		token:          strings.TrimSpace(s.BotToken),
		chatID:         strings.TrimSpace(s.ChatID),
		disablePreview: s.DisableWebPagePreview,
		affixes:        s.Affixes(),
		base:           s.Formatting,
		ov:             ov,
	}
	// An explicit override, even a blank one, replaces the default.
	if ov.chatID != nil {
		c.chatID = strings.TrimSpace(*ov.chatID)
	}
	if ov.disablePreview != nil {
		c.disablePreview = *ov.disablePreview
	}
	if c.token == "" {
		return Outcome{}, &Error{Kind: ErrConfiguration, Err: settings.ErrMissingBotToken}
	}
	if c.chatID == "" {
		return Outcome{}, &Error{Kind: ErrConfiguration, Err: settings.ErrMissingChatID}
	}

	mode := s.DefaultParseMode
	if ov.parseMode != nil {
		mode = *ov.parseMode
	}
	dialect, ok := tgfmt.ParseDialect(mode)
	if !ok {
		d.log.Debug("unknown parse mode; sending as plain text", logx.String("parse_mode", mode))
	}

	out, err := d.attempt(ctx, c, dialect)
	if err == nil || !d.canFallBack(ctx, err) {
		return out, err
	}

	var de *Error
	errors.As(err, &de)
	if de.Kind == ErrRemote && parseModeRejected(de.Description) {
		d.fallback(dialect, tgfmt.PlainText, de.Description)
		return d.attempt(ctx, c, tgfmt.PlainText)
	}
	if dialect != tgfmt.MarkdownV2 {
		return out, err
	}

	prev := dialect
	for _, next := range []tgfmt.Dialect{tgfmt.HTML, tgfmt.PlainText} {
		d.fallback(prev, next, err.Error())
		out, err = d.attempt(ctx, c, next)
		if err == nil || !d.canFallBack(ctx, err) {
			return out, err
		}
		prev = next
	}
	return out, err
}

// canFallBack reports whether another dialect is worth trying after err.
func (d *Deliverer) canFallBack(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	k := kindOf(err)
	return k == ErrRemote || k == ErrTransport
}

// attempt formats and submits the message once under dialect.
func (d *Deliverer) attempt(ctx context.Context, c *call, dialect tgfmt.Dialect) (Outcome, error) {
	c.attempts++
	out := Outcome{Dialect: dialect, Attempts: c.attempts}

	text, err := tgfmt.Format(c.message, dialect, c.ov.formatting(c.base, dialect), c.affixes)
	if err != nil {
		err = &Error{Kind: ErrFormatting, Dialect: dialect, Err: err}
		d.observe(c, dialect, 0, err)
		return out, err
	}

	d.log.Trace("formatted message",
		logx.String("dialect", dialect.String()),
		logx.Int("runes", utf8.RuneCountInString(text)),
		logx.String("text", text),
	)

	req := transport.Request{
		Token:  c.token,
		Method: transport.MethodSendMessage,
		Body: transport.SendMessageRequest{
			ChatID:                c.chatID,
			Text:                  text,
			ParseMode:             dialect.ParseMode(),
			DisableWebPagePreview: c.disablePreview,
		},
	}

	start := time.Now()
	resp, err := d.tr.Send(ctx, req)
	took := time.Since(start)
	if err != nil {
		err = &Error{Kind: ErrTransport, Dialect: dialect, Err: err}
		d.observe(c, dialect, took, err)
		return out, err
	}

	out.Description = resp.Description
	out.Result = resp.Result
	if !resp.Success() {
		err = &Error{Kind: ErrRemote, Dialect: dialect, StatusCode: resp.StatusCode, Description: resp.Description}
		d.observe(c, dialect, took, err)
		return out, err
	}

	out.OK = true
	d.observe(c, dialect, took, nil)
	return out, nil
}

func (d *Deliverer) observe(c *call, dialect tgfmt.Dialect, took time.Duration, err error) {
	result := resultOf(err)
	d.metrics.ObserveAttempt(dialect.String(), result, took)

	ev := AttemptEvent{Dialect: dialect.String(), Attempt: c.attempts, OK: err == nil, Duration: took}
	if err != nil {
		ev.Error = err.Error()
		d.log.Debug("sendMessage attempt failed",
			logx.String("dialect", dialect.String()),
			logx.Int("attempt", c.attempts),
			logx.String("result", result),
			logx.Err(err),
		)
	} else {
		d.log.Debug("sendMessage delivered",
			logx.String("dialect", dialect.String()),
			logx.Int("attempt", c.attempts),
			logx.Duration("took", took),
		)
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventAttempt, Data: ev})
	}
}

func (d *Deliverer) fallback(from, to tgfmt.Dialect, reason string) {
	d.metrics.ObserveFallback(from.String(), to.String())
	d.log.Warn("parse mode rejected; falling back",
		logx.String("from", from.String()),
		logx.String("to", to.String()),
		logx.String("reason", reason),
	)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventFallback, Data: FallbackEvent{From: from.String(), To: to.String(), Reason: reason}})
	}
}

func resultOf(err error) string {
	switch kindOf(err) {
	case nil:
		if err != nil {
			return metrics.ResultTransport
		}
		return metrics.ResultOK
	case ErrRemote:
		return metrics.ResultRemote
	case ErrFormatting:
		return metrics.ResultFormatting
	case ErrConfiguration:
		return metrics.ResultConfiguration
	default:
		return metrics.ResultTransport
	}
}
