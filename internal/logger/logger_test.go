package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, `"key":"value"`},
		{FormatText, `key=value`},
		{FormatPretty, ` key=value`},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log := New(&buf, tc.format, slog.LevelInfo)
		log.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "hello") {
			t.Fatalf("%s: message missing: %s", tc.format, out)
		}
		if !strings.Contains(out, tc.want) {
			t.Fatalf("%s: expected %q in output, got: %s", tc.format, tc.want, out)
		}
	}
}

func TestPrettyToBufferHasNoColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New(&buf, FormatPretty, slog.LevelInfo).Info("plain")
	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("expected no ANSI escapes for a non-terminal writer, got: %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatJSON, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message, got: %s", buf.String())
	}
}

func TestSlogSharesHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatText, slog.LevelDebug).With("component", "tbf")
	log.Slog().Debug("from slog", "n", 3)

	out := buf.String()
	if !strings.Contains(out, "component=tbf") || !strings.Contains(out, "n=3") {
		t.Fatalf("expected attrs through Slog(), got: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	if log.Slog().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, FormatJSON, slog.LevelInfo)

	FromContext(WithContext(context.Background(), log)).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q): err = %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatPretty, "JSON": FormatJSON, "text": FormatText, "pretty": FormatPretty} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
	if !NewPrettyHandler(&bytes.Buffer{}, nil).Enabled(context.Background(), slog.LevelInfo) {
		t.Error("nil options should enable info")
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})

	// Attrs added before a group keep their unqualified key.
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("file", "a.tbf")}).WithGroup("entry").WithGroup("shape"))
	logger.Info("nested", "rank", 2, slog.Group("dims", "d0", 3))

	out := buf.String()
	for _, want := range []string{"file=a.tbf", "entry.shape.rank=2", "entry.shape.dims.d0=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if h.WithGroup("") != h {
		t.Fatal("WithGroup(\"\") should return the same handler")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, &PrettyOptions{NoColor: true}))
	logger.Info("test", "path", "my file.tbf", "key", "simple", "err", errors.New("bad magic"))

	out := buf.String()
	if !strings.Contains(out, `path="my file.tbf"`) {
		t.Fatalf("expected quoted string with spaces, got: %s", out)
	}
	if !strings.Contains(out, "key=simple") {
		t.Fatalf("expected unquoted simple string, got: %s", out)
	}
	if !strings.Contains(out, `err="bad magic"`) {
		t.Fatalf("expected quoted error, got: %s", out)
	}
	if !strings.HasSuffix(out, "\n") || !strings.Contains(out, "INFO  test") {
		t.Fatalf("unexpected line layout: %q", out)
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"simple":           false,
		"has space":        true,
		"has\ttab":         true,
		"has\nnewline":     true,
		`has"quote`:        true,
		"a=b":              true,
		"":                 false,
		"no-special-chars": false,
	}
	for in, want := range tests {
		if got := needsQuoting(in); got != want {
			t.Errorf("needsQuoting(%q) = %v, want %v", in, got, want)
		}
	}
}
