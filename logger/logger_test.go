package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_NilConfig(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(nil) returned nil logger")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	if err == nil || !strings.Contains(err.Error(), `invalid level "loud"`) {
		t.Fatalf("got %v", err)
	}
}

func TestNew_InvalidEncoding(t *testing.T) {
	_, err := New(&Config{Encoding: "xml"})
	if err == nil || !strings.Contains(err.Error(), "invalid encoding") {
		t.Fatalf("got %v", err)
	}
}

func TestNew_WritesJSONAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.log")
	l, err := New(&Config{Level: "warn", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	Named(l, "store").Info("dropped")
	Named(l, "store").Warn("kept", zap.String("key", "rawr:k"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry written at warn level: %s", out)
	}
	for _, want := range []string{`"msg":"kept"`, `"component":"store"`, `"key":"rawr:k"`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestNamed_NilIsNop(t *testing.T) {
	l := Named(nil, "cache")
	l.Error("nothing happens")
}

func TestConfig_Defaults(t *testing.T) {
	cfg := (&Config{Level: "debug"}).withDefaults()
	if cfg.Level != "debug" || cfg.Encoding != "json" || len(cfg.OutputPaths) != 1 {
		t.Fatalf("got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
