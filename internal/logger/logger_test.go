package logger_test

import (
	"testing"

	"wf-backtest/internal/logger"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := logger.New(logger.Options{Level: lvl}); err != nil {
			t.Fatalf("level %q: %v", lvl, err)
		}
	}
	if _, err := logger.New(logger.Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInitAndOrNop(t *testing.T) {
	if logger.OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) returned nil")
	}
	l, err := logger.Init(logger.Options{Level: "warn", JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	if logger.L() != l {
		t.Fatalf("L did not return the installed logger")
	}
}
