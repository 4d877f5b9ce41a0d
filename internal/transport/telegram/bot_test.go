package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"telegrama/internal/transport"
	logx "telegrama/pkg/logx"
)

func TestBotClientSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot"+testToken+"/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":9}}`)
	}))
	defer srv.Close()

	c := NewBotClient(testOptions(srv.URL), logx.Nop())
	resp, err := c.Send(context.Background(), sendMessage("hi", "HTML"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("resp = %+v", resp)
	}
	if got["parse_mode"] != "HTML" || got["text"] != "hi" {
		t.Fatalf("payload = %v", got)
	}

	// Second call reuses the cached bot.
	if _, err := c.Send(context.Background(), sendMessage("again", "")); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if n := len(c.bots); n != 1 {
		t.Fatalf("cached bots = %d, want 1", n)
	}
}

func TestBotClientRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: unsupported parse_mode"}`)
	}))
	defer srv.Close()

	c := NewBotClient(testOptions(srv.URL), logx.Nop())
	resp, err := c.Send(context.Background(), sendMessage("hi", "Bogus"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Success() || !strings.Contains(resp.Description, "parse_mode") || resp.ErrorCode != 400 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestBotClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewBotClient(testOptions(url), logx.Nop())
	_, err := c.Send(context.Background(), sendMessage("hi", ""))
	var terr *transport.Error
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *transport.Error", err)
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestBotClientCancelledContext(t *testing.T) {
	c := NewBotClient(testOptions("http://127.0.0.1:1"), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Send(ctx, sendMessage("hi", "")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
