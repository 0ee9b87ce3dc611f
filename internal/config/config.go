package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/validate"
)

// EnvPrefix prefixes environment overrides, e.g. SHELLBOOT_BASE_URL.
const EnvPrefix = "SHELLBOOT"

// Default values.
const (
	DefaultListenAddr = "127.0.0.1:8780"
	DefaultPage       = "viewer"
)

// Config holds the runtime settings of the shell.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	LocalConfigURL string        `mapstructure:"local_config_url"`
	AccessToken    string        `mapstructure:"access_token"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	PluginDir      string        `mapstructure:"plugin_dir"`
	ResourceDB     string        `mapstructure:"resource_db"`
	Page           string        `mapstructure:"page"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

// Load reads configFile, or config.yaml in the home directory when empty,
// then applies SHELLBOOT_* environment overrides. A missing default file is
// not an error.
func Load(configFile string) (Config, error) {
	paths := GetPaths()
	v := viper.New()

	v.SetDefault("base_url", "")
	v.SetDefault("local_config_url", "")
	v.SetDefault("access_token", "")
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("plugin_dir", paths.PluginDir)
	v.SetDefault("resource_db", paths.ResourceDB)
	v.SetDefault("page", DefaultPage)
	v.SetDefault("http_timeout", constants.HTTPClientTimeout)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(ExpandPath(configFile))
	} else {
		v.SetConfigFile(paths.Config)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if configFile != "" || !missing {
			return Config{}, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	c.PluginDir = ExpandPath(c.PluginDir)
	c.ResourceDB = ExpandPath(c.ResourceDB)
	return c, nil
}

// Validate checks the settings needed to bootstrap against a backend.
func (c Config) Validate() error {
	if err := validate.HTTPURL(c.BaseURL); err != nil {
		return fmt.Errorf("config: base_url: %w", err)
	}
	if c.LocalConfigURL != "" {
		if err := validate.HTTPURL(c.LocalConfigURL); err != nil {
			return fmt.Errorf("config: local_config_url: %w", err)
		}
	}
	if !validate.Ident(c.Page) {
		return fmt.Errorf("config: page %q is not a valid identifier", c.Page)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("config: listen_addr is required")
	}
	return nil
}
