package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestCorrelatedLoggerAddsFields(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{AddSource: false})
	log := New(slog.New(handler))

	ctx := WithCorrelation(context.Background(), Correlation{Tier: "fast", CycleID: "fast-1"})
	ctx = WithCollector(ctx, "device")
	log.InfoCtx(ctx, "hello", "k", "v")
	out := buf.String()
	for _, want := range []string{"tier=fast", "cycle_id=fast-1", "collector=device", "k=v"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output: %s", want, out)
		}
	}
}

func TestCorrelatedLoggerNoCorrelation(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	log.InfoCtx(context.Background(), "plain")
	if strings.Contains(buf.String(), "tier=") {
		t.Fatalf("unexpected tier field present: %s", buf.String())
	}
}

func TestCollectorFromReturnsStashedCollector(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{Tier: "medium"})
	ctx = WithCollector(ctx, "device.wireless")
	if got := CollectorFrom(ctx); got != "device.wireless" {
		t.Fatalf("expected collector %q, got %q", "device.wireless", got)
	}
}

func TestCollectorFromEmptyWithoutCorrelation(t *testing.T) {
	if got := CollectorFrom(context.Background()); got != "" {
		t.Fatalf("expected empty collector, got %q", got)
	}
}
