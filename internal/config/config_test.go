package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTPIP != "127.0.0.1" || cfg.SMTPPort != 1025 {
		t.Errorf("smtp bind = %s:%d", cfg.SMTPIP, cfg.SMTPPort)
	}
	if cfg.HTTPIP != "127.0.0.1" || cfg.HTTPPort != 1080 {
		t.Errorf("http bind = %s:%d", cfg.HTTPIP, cfg.HTTPPort)
	}
	if cfg.CallbackWebhookMethod != "POST" {
		t.Errorf("callback method = %q, want POST", cfg.CallbackWebhookMethod)
	}
	if cfg.SMTPIdent == "" {
		t.Error("SMTPIdent should default to the hostname")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sendria.toml")
	content := `
smtp_ip = "0.0.0.0"
smtp_port = 2025
http_port = 8080
db = "/tmp/sendria.db"
callback_webhook_method = "put"
no_clear = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTPIP != "0.0.0.0" || cfg.SMTPPort != 2025 {
		t.Errorf("smtp bind = %s:%d", cfg.SMTPIP, cfg.SMTPPort)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("http port = %d", cfg.HTTPPort)
	}
	if cfg.DB != "/tmp/sendria.db" {
		t.Errorf("db = %q", cfg.DB)
	}
	if cfg.CallbackWebhookMethod != "PUT" {
		t.Errorf("callback method = %q, want normalized PUT", cfg.CallbackWebhookMethod)
	}
	if !cfg.NoClear {
		t.Error("no_clear should be true")
	}
}

func TestLoadRejectsInvalidWebhookMethod(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sendria.toml")
	if err := os.WriteFile(path, []byte(`callback_webhook_method = "TRACE"`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected an error for an unsupported webhook method")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sendria.toml")
	if err := os.WriteFile(path, []byte(`smtp_port = 2025`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	t.Setenv("SENDRIA_SMTP_PORT", "3025")
	t.Setenv("SENDRIA_NO_QUIT", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTPPort != 3025 {
		t.Errorf("smtp port = %d, want env override 3025", cfg.SMTPPort)
	}
	if !cfg.NoQuit {
		t.Error("no_quit should be set from the environment")
	}
}
