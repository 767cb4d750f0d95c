package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	sink.Notify("Login successful", Success)
	sink.Notify("Invalid credentials", Failure)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "level=INFO") || !strings.Contains(lines[0], `msg="Login successful"`) {
		t.Fatalf("unexpected success line %q", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "kind=failure") {
		t.Fatalf("unexpected failure line %q", lines[1])
	}
}

func TestRecorderLast(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	if _, ok := rec.Last(); ok {
		t.Fatal("empty recorder reported a notice")
	}
	rec.Notify("a", Success)
	rec.Notify("b", Failure)
	if n, ok := rec.Last(); !ok || n.Message != "b" || n.Kind != Failure {
		t.Fatalf("unexpected last notice %+v", n)
	}
}
