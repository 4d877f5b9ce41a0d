package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "telegrama/pkg/logx"
)

func TestGoCancelOnError(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })
	s.Go("failer", func(context.Context) error { return errors.New("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "failer: boom") {
		t.Fatalf("Err() = %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("Active() = %d after Wait", s.Active())
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go0("panicker", func(context.Context) { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "panic in panicker") {
		t.Fatalf("Err() = %v", err)
	}
	if s.Context().Err() != nil {
		t.Fatal("context cancelled without WithCancelOnError")
	}
}

func TestStopIgnoresCanceled(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil for context.Canceled", err)
	}
}
