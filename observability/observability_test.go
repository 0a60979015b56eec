package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	log.With(String("doc", "a.pdf")).Warn("skip annotation", Int("page", 4), Error("err", errors.New("boom")))
	out := buf.String()
	for _, want := range []string{"level=WARN", "skip annotation", "doc=a.pdf", "page=4", "err=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestRecorderSharesEntriesWithChildren(t *testing.T) {
	rec := NewRecorder()
	child := rec.With(String("component", "export"))
	child.Warn("page out of range", Int("page", 9))
	rec.Info("done")
	entries := rec.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Fields["component"] != "export" || entries[0].Fields["page"] != 9 {
		t.Fatalf("unexpected fields: %+v", entries[0].Fields)
	}
	if rec.Count("warn") != 1 || rec.Count("info") != 1 {
		t.Fatalf("unexpected level counts")
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("OrNop(nil) should return NopLogger")
	}
	rec := NewRecorder()
	if OrNop(rec) != Logger(rec) {
		t.Fatalf("OrNop should keep a non-nil logger")
	}
}
