package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerWritesRecords(t *testing.T) {
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("spec built", "stages", 23)

	out := buf.String()
	if !strings.Contains(out, `"msg":"spec built"`) {
		t.Fatalf("missing message: %s", out)
	}
	if !strings.Contains(out, `"stages":23`) {
		t.Fatalf("missing attribute: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record not filtered: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestWithAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo).With("layer", 3)
	log.Info("stage appended")

	if !strings.Contains(buf.String(), "layer=3") {
		t.Fatalf("missing bound attribute: %s", buf.String())
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("wrote spec", "path", "out/spec.json")

	out := buf.String()
	if !strings.Contains(out, "wrote spec") {
		t.Fatalf("missing message: %s", out)
	}
	if !strings.Contains(out, "path=out/spec.json") {
		t.Fatalf("missing attribute: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("context logger not used: %s", buf.String())
	}

	if FromContext(context.Background()) == nil {
		t.Fatal("missing logger should fall back to default")
	}
}
