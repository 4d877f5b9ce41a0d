package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "delivery"))
	log.Info("sent", Int("attempt", 2), Err(errors.New("boom")), Bool("ok", true))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if m["message"] != "sent" || m["comp"] != "delivery" || m["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["attempt"] != float64(2) || m["ok"] != true {
		t.Fatalf("unexpected fields: %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want short file:line", c)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatal("Enabled() disagrees with configured level")
	}
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "debug").Trace("hidden")
	if buf.Len() != 0 {
		t.Fatalf("trace logged at debug level: %q", buf.String())
	}

	NewWriter(&buf, "trace").Trace("shown", String("k", "v"))
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if m["level"] != "trace" || m["message"] != "shown" || m["k"] != "v" {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", String("k", "v"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !bytes.Contains(b, []byte(`"message":"to file"`)) || !bytes.Contains(b, []byte(`"k":"v"`)) {
		t.Fatalf("file log = %q", b)
	}
}
