package logger

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestOptionsFromEnv(t *testing.T) {
	tests := []struct {
		level, dev string
		want       zerolog.Level
		color      bool
	}{
		{"", "", zerolog.InfoLevel, false},
		{"debug", "true", zerolog.DebugLevel, true},
		{"nonsense", "", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.level)
		t.Setenv("DEV", tt.dev)
		t.Setenv("DEV_MODE", "")
		t.Setenv("DEVELOPMENT", "")
		opts := OptionsFromEnv()
		if opts.Level != tt.want || opts.Color != tt.color {
			t.Errorf("LOG_LEVEL=%q DEV=%q: got %+v", tt.level, tt.dev, opts)
		}
	}
}

func TestCallerColumn(t *testing.T) {
	short := callerColumn(0, "/src/internal/agent/agent.go", 12)
	if len(short) != callerWidth || !strings.HasPrefix(short, "agent.go:12") {
		t.Errorf("short caller %q", short)
	}
	long := callerColumn(0, "/x/"+strings.Repeat("a", 40)+".go", 7)
	if len(long) != callerWidth || !strings.HasSuffix(long, ".go:7") {
		t.Errorf("long caller %q", long)
	}
}

func TestRequestIDs(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 12 || a == b {
		t.Fatalf("request ids %q %q", a, b)
	}
	ctx := WithRequestID(context.Background(), a)
	if RequestIDFromContext(ctx) != a {
		t.Fatal("request id not stored in context")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty id")
	}
}
