package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBase != "http://localhost:8000" {
		t.Errorf("Unexpected default api_base: %q", cfg.APIBase)
	}
	if cfg.CallbackAddr != "127.0.0.1:53682" {
		t.Errorf("Unexpected default callback_addr: %q", cfg.CallbackAddr)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath default must be resolved")
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvdeck.yaml")
	data := "api_base: https://api.example.com\ndb_path: /tmp/x.db\noffline: true\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBase != "https://api.example.com" {
		t.Errorf("api_base not read: %q", cfg.APIBase)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("db_path not read: %q", cfg.DBPath)
	}
	if !cfg.Offline {
		t.Error("offline not read")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level not read: %q", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvdeck.yaml")
	if err := os.WriteFile(path, []byte("api_base: https://file.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CVDECK_API_BASE", "https://env.example.com")
	t.Setenv("CVDECK_OFFLINE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBase != "https://env.example.com" {
		t.Errorf("Env override lost: %q", cfg.APIBase)
	}
	if !cfg.Offline {
		t.Error("CVDECK_OFFLINE override lost")
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvdeck.yaml")
	if err := os.WriteFile(path, []byte("api_base: [unclosed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for malformed YAML")
	}
}
