package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nupi-ai/shellboot/internal/constants"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ListenAddr != DefaultListenAddr || c.Page != DefaultPage {
		t.Fatalf("defaults = %+v", c)
	}
	if c.PluginDir != filepath.Join(home, "plugins") || c.ResourceDB != filepath.Join(home, "resources.db") {
		t.Fatalf("paths = %+v", c)
	}
	if c.HTTPTimeout != constants.HTTPClientTimeout {
		t.Fatalf("HTTPTimeout = %s", c.HTTPTimeout)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)
	t.Setenv("SHELLBOOT_LISTEN_ADDR", "127.0.0.1:9999")

	body := strings.Join([]string{
		"base_url: https://geonode.example.org",
		"page: dashboard",
		"http_timeout: 3s",
		"allowed_origins:",
		"  - https://maps.example.org",
		"listen_addr: 0.0.0.0:80",
	}, "\n")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.BaseURL != "https://geonode.example.org" || c.Page != "dashboard" || c.HTTPTimeout != 3*time.Second {
		t.Fatalf("config = %+v", c)
	}
	if c.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("env override ignored: %s", c.ListenAddr)
	}
	if len(c.AllowedOrigins) != 1 || c.AllowedOrigins[0] != "https://maps.example.org" {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		BaseURL:     "http://localhost:8000",
		ListenAddr:  DefaultListenAddr,
		Page:        DefaultPage,
		HTTPTimeout: time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := map[string]func(*Config){
		"no base url":      func(c *Config) { c.BaseURL = "" },
		"bad local config": func(c *Config) { c.LocalConfigURL = "ftp://x" },
		"bad page":         func(c *Config) { c.Page = "../etc" },
		"zero timeout":     func(c *Config) { c.HTTPTimeout = 0 },
		"no listen addr":   func(c *Config) { c.ListenAddr = " " },
	}
	for name, mutate := range tests {
		c := valid
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
