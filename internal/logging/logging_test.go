package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTraditionalHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraditionalHandler(&buf, slog.LevelInfo))
	log.With("image", "a.fits").WithGroup("shift").Info("applied", "dx", 1.5)
	log.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "[INFO] applied [image=a.fits shift.dx=1.5]") {
		t.Fatalf("unexpected log line %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "warn", "json").Warn("careful", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"careful"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	New(&buf, "warn", "text").Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info should be below warn level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
