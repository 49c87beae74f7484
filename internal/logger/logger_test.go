package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) != zap.S() {
		t.Fatal("empty context should yield the global logger")
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	l := zap.NewNop().Sugar()
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return the stored logger")
	}
}

func TestNewCreatesDailyFile(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	root := t.TempDir()
	l, err := New(root, "debug", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = l.Sync()

	want := filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}
