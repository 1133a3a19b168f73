// Package config loads the client configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything the app needs at startup.
type Config struct {
	// APIBase is the vendor backend base URL, e.g. "https://api.cvdeck.app".
	APIBase string `yaml:"api_base"`
	// DBPath is the on-device sqlite file. Defaults to ~/.cvdeck/cvdeck.db.
	DBPath string `yaml:"db_path"`
	// Offline forces offline mode regardless of backend reachability.
	Offline bool `yaml:"offline"`
	// CallbackAddr is the loopback address the OAuth callback server binds to.
	CallbackAddr string `yaml:"callback_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// DeviceSecret signs offline session tokens. Generated on first run when empty.
	DeviceSecret string `yaml:"device_secret"`
}

// Load reads the config file at path (default ~/.cvdeck.yaml when empty),
// applies defaults and env overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		APIBase:      "http://localhost:8000",
		CallbackAddr: "127.0.0.1:53682",
		LogLevel:     "info",
	}

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".cvdeck.yaml")
		}
	}

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			dec := yaml.NewDecoder(f)
			decErr := dec.Decode(cfg)
			f.Close()
			if decErr != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, decErr)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".cvdeck", "cvdeck.db")
	}

	return cfg, nil
}

// applyEnv overrides fields from CVDECK_* environment variables.
func applyEnv(cfg *Config) {
	if v := getenv("api-base"); v != "" {
		cfg.APIBase = v
	}
	if v := getenv("db-path"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("offline"); v != "" {
		cfg.Offline = v == "true" || v == "1"
	}
	if v := getenv("callback-addr"); v != "" {
		cfg.CallbackAddr = v
	}
	if v := getenv("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("device-secret"); v != "" {
		cfg.DeviceSecret = v
	}
}

// getenv converts a hyphenated setting name to its CVDECK_ environment
// variable: "api-base" -> "CVDECK_API_BASE".
func getenv(name string) string {
	env := "CVDECK_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return os.Getenv(env)
}
