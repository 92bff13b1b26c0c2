package logx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("expected loud to be rejected")
	}
	if !ValidLevel("") || !ValidLevel(" Warning ") {
		t.Fatal("expected empty and warning to be accepted")
	}
}

func TestFormatChatJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"send failed","comp":"broadcast","chat_id":42}` + "\n")
	got := formatChatJSON(line)
	want := "[WARN] send failed\n- chat_id=42\n- comp=broadcast"
	if got != want {
		t.Fatalf("formatChatJSON = %q, want %q", got, want)
	}

	if got := formatChatJSON([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := wrap(zerolog.New(&buf)).With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Duration("took", 1500*time.Millisecond), Err(nil))

	out := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"took":"1.5s"`, `"message":"hello"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("expected zero logger")
	}
	log.Error("dropped")
}
