package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.AgentMode != "local" || cfg.AgentTimeout != 30*time.Second {
		t.Fatalf("agent settings = %q, %s", cfg.AgentMode, cfg.AgentTimeout)
	}
	if cfg.MaxUploadSizeMB != 200 {
		t.Fatalf("MaxUploadSizeMB = %d", cfg.MaxUploadSizeMB)
	}
	if cfg.SessionInactivityTimeout != 0 {
		t.Fatalf("SessionInactivityTimeout = %s, want disabled", cfg.SessionInactivityTimeout)
	}
	want := []string{".csv", ".xlsx", ".xls"}
	if len(cfg.AllowedExtensions) != len(want) {
		t.Fatalf("AllowedExtensions = %v", cfg.AllowedExtensions)
	}
	for i, ext := range want {
		if cfg.AllowedExtensions[i] != ext {
			t.Fatalf("AllowedExtensions = %v", cfg.AllowedExtensions)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("AGENT_TIMEOUT", "2s")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "90s")
	t.Setenv("ALLOWED_EXTENSIONS", "CSV, .tsv")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != ":9090" || cfg.AgentTimeout != 2*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SessionInactivityTimeout != 90*time.Second {
		t.Fatalf("SessionInactivityTimeout = %s", cfg.SessionInactivityTimeout)
	}
	if len(cfg.AllowedExtensions) != 2 || cfg.AllowedExtensions[0] != ".csv" || cfg.AllowedExtensions[1] != ".tsv" {
		t.Fatalf("AllowedExtensions = %v", cfg.AllowedExtensions)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin not applied")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "2s")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of sub-5s inactivity timeout")
	}
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "")

	t.Setenv("MAX_UPLOAD_SIZE_MB", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of zero upload limit")
	}
	t.Setenv("MAX_UPLOAD_SIZE_MB", "")

	t.Setenv("AGENT_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of unparseable duration")
	}
}
