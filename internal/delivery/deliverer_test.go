package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"telegrama/internal/eventbus"
	"telegrama/internal/metrics"
	"telegrama/internal/settings"
	"telegrama/internal/transport"
	"telegrama/internal/transport/telegram"
	logx "telegrama/pkg/logx"
	"telegrama/pkg/tgfmt"
)

// fakeTransport answers each call with the next scripted reply and records
// the requests it saw.
type fakeTransport struct {
	mu      sync.Mutex
	replies []reply
	got     []transport.SendMessageRequest
}

type reply struct {
	resp transport.RawResponse
	err  error
}

func ok() reply {
	return reply{resp: transport.RawResponse{StatusCode: 200, OK: true, Result: json.RawMessage(`{"message_id":1}`)}}
}

func rejected(desc string) reply {
	return reply{resp: transport.RawResponse{StatusCode: 400, ErrorCode: 400, Description: desc}}
}

func (f *fakeTransport) Send(_ context.Context, req transport.Request) (transport.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req.Body.(transport.SendMessageRequest))
	if len(f.replies) == 0 {
		return transport.RawResponse{}, &transport.Error{Method: req.Method, Err: errors.New("no scripted reply")}
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.resp, r.err
}

func (f *fakeTransport) modes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.got))
	for i, r := range f.got {
		out[i] = r.ParseMode
	}
	return out
}

func testSettings() settings.Settings {
	s := settings.Default()
	s.BotToken = "1:token"
	s.ChatID = "42"
	return s
}

func newDeliverer(s settings.Settings, tr transport.Transport) *Deliverer {
	return New(settings.NewStore(s), tr, logx.Nop())
}

func TestSendFallback(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		replies   []reply
		wantModes []string
		wantOK    bool
		wantKind  error
		wantFinal tgfmt.Dialect
	}{
		{
			name:      "markdown accepted",
			mode:      "MarkdownV2",
			replies:   []reply{ok()},
			wantModes: []string{"MarkdownV2"},
			wantOK:    true,
			wantFinal: tgfmt.MarkdownV2,
		},
		{
			name:      "entity error cascades to html",
			mode:      "MarkdownV2",
			replies:   []reply{rejected("Bad Request: can't parse entities: Character '.' is reserved"), ok()},
			wantModes: []string{"MarkdownV2", "HTML"},
			wantOK:    true,
			wantFinal: tgfmt.HTML,
		},
		{
			name:      "cascade reaches plain text",
			mode:      "MarkdownV2",
			replies:   []reply{rejected("Bad Request: can't parse entities"), rejected("Bad Request: can't parse entities"), ok()},
			wantModes: []string{"MarkdownV2", "HTML", ""},
			wantOK:    true,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "cascade exhausted",
			mode:      "MarkdownV2",
			replies:   []reply{rejected("a"), rejected("b"), rejected("Bad Request: chat not found")},
			wantModes: []string{"MarkdownV2", "HTML", ""},
			wantKind:  ErrRemote,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "parse mode rejection goes straight to plain",
			mode:      "MarkdownV2",
			replies:   []reply{rejected("Bad Request: unsupported parse_mode"), ok()},
			wantModes: []string{"MarkdownV2", ""},
			wantOK:    true,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "html parse mode rejection retries plain once",
			mode:      "HTML",
			replies:   []reply{rejected("Bad Request: unsupported Parse Mode"), rejected("Forbidden")},
			wantModes: []string{"HTML", ""},
			wantKind:  ErrRemote,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "html entity error propagates",
			mode:      "HTML",
			replies:   []reply{rejected("Bad Request: can't parse entities"), ok()},
			wantModes: []string{"HTML"},
			wantKind:  ErrRemote,
			wantFinal: tgfmt.HTML,
		},
		{
			name:      "plain parse mode rejection retries once",
			mode:      "",
			replies:   []reply{rejected("Bad Request: unsupported parse_mode"), ok()},
			wantModes: []string{"", ""},
			wantOK:    true,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "plain parse mode rejection twice propagates",
			mode:      "",
			replies:   []reply{rejected("Bad Request: unsupported parse_mode"), rejected("Bad Request: unsupported parse_mode")},
			wantModes: []string{"", ""},
			wantKind:  ErrRemote,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "plain failure propagates",
			mode:      "",
			replies:   []reply{rejected("Bad Request: chat not found")},
			wantModes: []string{""},
			wantKind:  ErrRemote,
			wantFinal: tgfmt.PlainText,
		},
		{
			name:      "markdown transport error cascades",
			mode:      "MarkdownV2",
			replies:   []reply{{err: &transport.Error{Method: "sendMessage", Err: errors.New("reset")}}, ok()},
			wantModes: []string{"MarkdownV2", "HTML"},
			wantOK:    true,
			wantFinal: tgfmt.HTML,
		},
		{
			name:      "html transport error propagates",
			mode:      "HTML",
			replies:   []reply{{err: &transport.Error{Method: "sendMessage", Err: errors.New("reset")}}},
			wantModes: []string{"HTML"},
			wantKind:  ErrTransport,
			wantFinal: tgfmt.HTML,
		},
		{
			name:      "unknown mode sent as plain",
			mode:      "Markdown",
			replies:   []reply{ok()},
			wantModes: []string{""},
			wantOK:    true,
			wantFinal: tgfmt.PlainText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{replies: tt.replies}
			d := newDeliverer(testSettings(), tr)

			out, err := d.Send(context.Background(), "Hello *world*.", With(KeyParseMode, tt.mode))
			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %v", err, tt.wantKind)
				}
			} else if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if out.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", out.OK, tt.wantOK)
			}
			if out.Dialect != tt.wantFinal {
				t.Errorf("Dialect = %v, want %v", out.Dialect, tt.wantFinal)
			}
			if got := tr.modes(); strings.Join(got, ",") != strings.Join(tt.wantModes, ",") {
				t.Errorf("parse modes = %q, want %q", got, tt.wantModes)
			}
			if out.Attempts != len(tt.wantModes) {
				t.Errorf("Attempts = %d, want %d", out.Attempts, len(tt.wantModes))
			}
		})
	}
}

func TestSendReformatsPerDialect(t *testing.T) {
	tr := &fakeTransport{replies: []reply{rejected("can't parse entities"), rejected("can't parse entities"), ok()}}
	d := newDeliverer(testSettings(), tr)

	if _, err := d.Send(context.Background(), "a < b. *x*"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []string{`a < b\. *x*`, "a &lt; b. *x*", "a < b. *x*"}
	for i, w := range want {
		if tr.got[i].Text != w {
			t.Errorf("attempt %d text = %q, want %q", i+1, tr.got[i].Text, w)
		}
	}
}

func TestSendRemoteDescriptionPreserved(t *testing.T) {
	tr := &fakeTransport{replies: []reply{rejected("Bad Request: chat not found")}}
	d := newDeliverer(testSettings(), tr)

	out, err := d.Send(context.Background(), "hi", With(KeyParseMode, "HTML"))
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if de.Description != "Bad Request: chat not found" || de.StatusCode != 400 {
		t.Fatalf("error = %+v", de)
	}
	if out.Description != "Bad Request: chat not found" {
		t.Fatalf("outcome description = %q", out.Description)
	}
}

func TestSendConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*settings.Settings)
		opts []Option
		want error
	}{
		{"no token", func(s *settings.Settings) { s.BotToken = "" }, nil, settings.ErrMissingBotToken},
		{"no chat id", func(s *settings.Settings) { s.ChatID = " " }, nil, settings.ErrMissingChatID},
		{"empty chat override", func(*settings.Settings) {}, []Option{With(KeyChatID, "")}, settings.ErrMissingChatID},
		{"blank chat override", func(*settings.Settings) {}, []Option{With(KeyChatID, "  ")}, settings.ErrMissingChatID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mut(&s)
			tr := &fakeTransport{}
			_, err := newDeliverer(s, tr).Send(context.Background(), "hi", tt.opts...)
			if !errors.Is(err, ErrConfiguration) || !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want configuration error wrapping %v", err, tt.want)
			}
			if len(tr.got) != 0 {
				t.Fatal("network call attempted despite configuration error")
			}
		})
	}
}

func TestSendChatIDOverride(t *testing.T) {
	s := testSettings()
	s.ChatID = ""
	tr := &fakeTransport{replies: []reply{ok()}}
	if _, err := newDeliverer(s, tr).Send(context.Background(), "hi", With(KeyChatID, "@alerts")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tr.got[0].ChatID != "@alerts" {
		t.Fatalf("chat_id = %q", tr.got[0].ChatID)
	}
}

func TestSendTracesFormattedText(t *testing.T) {
	var buf strings.Builder
	tr := &fakeTransport{replies: []reply{ok()}}
	d := New(settings.NewStore(testSettings()), tr, logx.NewWriter(&buf, "trace"))

	if _, err := d.Send(context.Background(), "v1.2", With(KeyParseMode, "MarkdownV2")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(buf.String(), `"message":"formatted message"`) || !strings.Contains(buf.String(), `v1\\.2`) {
		t.Fatalf("trace output = %q", buf.String())
	}
}

func TestSendEmptyMessageIsFormattingError(t *testing.T) {
	tr := &fakeTransport{replies: []reply{ok()}}
	_, err := newDeliverer(testSettings(), tr).Send(context.Background(), "")
	if !errors.Is(err, ErrFormatting) || !errors.Is(err, tgfmt.ErrEmpty) {
		t.Fatalf("err = %v, want formatting error", err)
	}
	if len(tr.got) != 0 {
		t.Fatal("empty message reached the transport")
	}
}

func TestSendStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &cancellingTransport{cancel: cancel}
	_, err := newDeliverer(testSettings(), tr).Send(ctx, "hi")
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want cancelled transport error", err)
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d, want no fallback after cancellation", tr.calls)
	}
}

type cancellingTransport struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingTransport) Send(ctx context.Context, req transport.Request) (transport.RawResponse, error) {
	c.calls++
	c.cancel()
	return transport.RawResponse{}, &transport.Error{Method: req.Method, Err: ctx.Err()}
}

func TestSendOptionOverrides(t *testing.T) {
	s := testSettings()
	s.MessagePrefix = "[ci] "
	tr := &fakeTransport{replies: []reply{ok(), ok(), ok()}}
	d := newDeliverer(s, tr)
	ctx := context.Background()

	// Pre-formatted MarkdownV2 is sent untouched.
	if _, err := d.SendPairs(ctx, `*done* \.`, [][2]string{{"escape_markdown", "FALSE"}, {"disable_web_page_preview", "false"}}); err != nil {
		t.Fatal(err)
	}
	if got := tr.got[0]; got.Text != `[ci] *done* \.` || got.DisableWebPagePreview {
		t.Errorf("pre-formatted request = %+v", got)
	}

	// Email obfuscation and truncation.
	if _, err := d.SendPairs(ctx, "mail john@example.com", [][2]string{{"obfuscate_emails", "true"}, {"parse_mode", ""}, {"truncate", "12"}}); err != nil {
		t.Fatal(err)
	}
	if got := tr.got[1].Text; got != "[ci] mail..." {
		t.Errorf("text = %q", got)
	}

	// Invalid truncate disables truncation; last occurrence wins.
	long := strings.Repeat("x", 5000)
	if _, err := d.SendPairs(ctx, long, [][2]string{{"truncate", "10"}, {"truncate", "-3"}, {"unknown", "1"}}); err != nil {
		t.Fatal(err)
	}
	if got := len(tr.got[2].Text); got != len("[ci] ")+5000 {
		t.Errorf("len = %d, want untruncated", got)
	}
}

func TestSendPublishesEventsAndMetrics(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	reg := prometheus.NewRegistry()
	m := metrics.NewDelivery(reg)

	tr := &fakeTransport{replies: []reply{rejected("can't parse entities"), ok()}}
	d := newDeliverer(testSettings(), tr)
	d.SetEventBus(bus)
	d.SetMetrics(m)

	if _, err := d.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.Type)
		case <-timeout:
			t.Fatalf("events = %v, want 3", types)
		}
	}
	want := []string{EventAttempt, EventFallback, EventAttempt}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", types, want)
	}

	if n, err := testutil.GatherAndCount(reg, "telegrama_fallbacks_total"); err != nil || n != 1 {
		t.Fatalf("fallback series = %d (err %v), want 1", n, err)
	}
}

func TestSendEndToEnd(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":5}}`)
	}))
	defer srv.Close()

	s := testSettings()
	s.Client.BaseURL = srv.URL
	s.Client.RetryCount = 0
	tr := telegram.NewHTTPClient(s.Client, logx.Nop())

	out, err := newDeliverer(s, tr).SendPairs(context.Background(), "Hello *world*", [][2]string{{"parse_mode", "MarkdownV2"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !out.OK || string(out.Result) != `{"message_id":5}` {
		t.Fatalf("outcome = %+v", out)
	}
	if payload["text"] != "Hello *world*" || payload["parse_mode"] != "MarkdownV2" || payload["chat_id"] != "42" {
		t.Fatalf("payload = %v", payload)
	}
}
