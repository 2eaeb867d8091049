package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(&buf, "info")
	if err != nil {
		t.Fatal(err)
	}

	log.Debugf("hidden %d", 1)
	log.Infof("visible %d", 2)
	log.WithPrefix("store: ").Warnf("careful")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "visible 2") {
		t.Errorf("missing info message: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "store: careful") {
		t.Errorf("missing prefixed warning: %q", out)
	}
}

func TestZapLogger_BadLevel(t *testing.T) {
	if _, err := NewZapLogger(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNopLogger(t *testing.T) {
	NopLogger.Infof("nothing %s", "happens")
	if NopLogger.WithPrefix("x") != NopLogger {
		t.Error("nop logger prefix should return itself")
	}
	if err := Sync(NopLogger); err != nil {
		t.Error(err)
	}
}
