package sys

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func newTestLogger(buf *bytes.Buffer, opts *BotLogHandlerOptions) *slog.Logger {
	color.NoColor = true
	return slog.New(NewBotLogHandler(buf, opts))
}

func TestBotLogHandlerFormatting(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *slog.Logger)
		want  string
		avoid string
	}{
		{"info", func(l *slog.Logger) { l.Info("hello") }, "[INFO] hello", ""},
		{"warn", func(l *slog.Logger) { l.Warn("careful") }, "[WARN] careful", ""},
		{"error", func(l *slog.Logger) { l.Error("broken") }, "[ERROR] broken", ""},
		{"component info", func(l *slog.Logger) { l.Info("joined", slog.String("component", "voice")) }, "[VOICE] joined", "[INFO]"},
		{"component warn", func(l *slog.Logger) { l.Warn("slow", slog.String("component", "source")) }, "[WARN] [SOURCE] slow", ""},
		{"disgo name attr", func(l *slog.Logger) { l.Info("opened", slog.String("name", "gateway")) }, "[GATEWAY] opened", ""},
		{"bracketed info", func(l *slog.Logger) { l.Info("[DEV] registered") }, "[DEV] registered", "[INFO]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(newTestLogger(&buf, &BotLogHandlerOptions{Level: slog.LevelDebug}))
			got := buf.String()
			if !strings.Contains(got, tt.want) {
				t.Errorf("expected %q in %q", tt.want, got)
			}
			if tt.avoid != "" && strings.Contains(got, tt.avoid) {
				t.Errorf("expected no %q in %q", tt.avoid, got)
			}
		})
	}
}

func TestBotLogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, nil).With(slog.String("component", "player"))
	l.Info("started")
	if got := buf.String(); !strings.Contains(got, "[PLAYER] started") {
		t.Errorf("expected component from With, got %q", got)
	}
}

func TestBotLogHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, &BotLogHandlerOptions{Level: slog.LevelInfo})
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug to be filtered, got %q", buf.String())
	}

	buf.Reset()
	l = newTestLogger(&buf, &BotLogHandlerOptions{Level: slog.LevelDebug, Silent: true})
	l.Error("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected silent handler to drop everything, got %q", buf.String())
	}
}

func TestLevelLabel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{slog.LevelWarn, "WARN"},
		{slog.LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got, _ := levelLabel(tt.level); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStripANSIWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewStripANSIWriter(&buf)
	in := "\x1b[31m[ERROR] boom\x1b[0m\n"
	n, err := w.Write([]byte(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(in) {
		t.Errorf("expected %d bytes reported, got %d", len(in), n)
	}
	if got := buf.String(); got != "[ERROR] boom\n" {
		t.Errorf("expected escapes stripped, got %q", got)
	}
}

func TestLogFatalPanics(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	var buf bytes.Buffer
	slog.SetDefault(newTestLogger(&buf, nil))

	defer func() {
		r := recover()
		if r != "fatal 42" {
			t.Errorf("expected panic with message, got %v", r)
		}
		if !strings.Contains(buf.String(), "[FATAL] fatal 42") {
			t.Errorf("expected fatal line, got %q", buf.String())
		}
	}()
	LogFatal("fatal %d", 42)
}
