package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := c.Snapshot()
	if s.Port != DefaultPort {
		t.Fatalf("port = %d, want %d", s.Port, DefaultPort)
	}
	if s.Threshold != DefaultThreshold || s.ToleranceMs != DefaultToleranceMs {
		t.Fatalf("evaluation defaults = %+v", s)
	}
	if len(s.APIKey) != 32 {
		t.Fatalf("API key %q not generated", s.APIKey)
	}
	if s.ModelsDir != filepath.Join(DefaultToolsDir, "models") {
		t.Fatalf("models dir = %q", s.ModelsDir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.SetWebhookURL("https://hooks.example.com/kws"); err != nil {
		t.Fatalf("SetWebhookURL: %v", err)
	}
	key := c.APIKey()

	again := New(path)
	if err := again.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	s := again.Snapshot()
	if s.WebhookURL != "https://hooks.example.com/kws" {
		t.Fatalf("webhook not persisted: %q", s.WebhookURL)
	}
	if s.APIKey != key {
		t.Fatalf("API key regenerated on reload")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"port":      `{"system":{"port":70000}}`,
		"threshold": `{"evaluation":{"threshold":1.5}}`,
		"tolerance": `{"evaluation":{"tolerance_ms":-1}}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := New(path).Load(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidKeyword(t *testing.T) {
	for _, ok := range []string{"porcupine", "hey_vp", "kw2"} {
		if !ValidKeyword(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "Kw", "../etc", "a b", "kw-1"} {
		if ValidKeyword(bad) {
			t.Fatalf("%q should be invalid", bad)
		}
	}
}
