package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gopuppet.json")
	data := `{"session": {"controlURL": "ws://localhost:9222"}, "wait": {"timeout": "2s"}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.ControlURL != "ws://localhost:9222" {
		t.Errorf("controlURL = %q", cfg.Session.ControlURL)
	}
	if !cfg.Session.Headless {
		t.Error("headless default should survive a partial file")
	}
	if got := cfg.Wait.ResolveTimeout(); got != 2*time.Second {
		t.Errorf("timeout = %s, want 2s", got)
	}
	if got := cfg.Wait.ResolveInterval(); got != 100*time.Millisecond {
		t.Errorf("interval = %s, want default 100ms", got)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gopuppet.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestResolveDurationFallbacks(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"soon", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		w := WaitConfig{Timeout: tt.value}
		if got := w.ResolveTimeout(); got != tt.want {
			t.Errorf("ResolveTimeout(%q) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "gopuppet.json")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected refusal to overwrite existing config")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault failed: %v", err)
	}
	if cfg.Wait.Timeout != "5s" || cfg.Session.Device != "clear" {
		t.Errorf("unexpected written defaults: %+v", cfg)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
