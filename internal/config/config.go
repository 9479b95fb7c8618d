// SPDX-License-Identifier: MIT

// Package config loads bgctl's own runtime settings with precedence
// ENV > file > defaults. These settings locate the deployment record and
// the proxy; the record itself lives in internal/envfile.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the effective bgctl settings.
type Config struct {
	// Deployment record (the KEY=VALUE source of truth).
	DeployEnvFile string

	// Proxy control. ProxyControlURL set = reload over HTTP; otherwise
	// reload by exec into ProxyContainer.
	NginxConfPath   string
	NginxTemplate   string // empty = built-in template
	ProxyControlURL string
	ProxyContainer  string

	// Container runtime.
	ContainerRuntime string // docker or podman
	ComposeFile      string
	ComposeDir       string

	// Probing.
	ProbeHost    string
	ProbeTimeout time.Duration

	// Journal and serve mode.
	HistoryDB string
	Listen    string

	// Logging.
	LogLevel string
	LogFile  string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DeployEnvFile:    "deploy.env",
		NginxConfPath:    "nginx/upstream.conf",
		ContainerRuntime: "docker",
		ComposeFile:      "docker-compose.yml",
		ComposeDir:       ".",
		ProbeHost:        "127.0.0.1",
		ProbeTimeout:     5 * time.Second,
		HistoryDB:        "bgctl-history.db",
		Listen:           ":8090",
		LogLevel:         "info",
		ProxyContainer:   "nginx",
	}
}

// fileConfig mirrors Config for the YAML layer. Durations are strings
// there ("5s") and parsed during merge.
type fileConfig struct {
	DeployEnvFile    *string `yaml:"deploy_env_file"`
	NginxConfPath    *string `yaml:"nginx_conf_path"`
	NginxTemplate    *string `yaml:"nginx_template"`
	ProxyControlURL  *string `yaml:"proxy_control_url"`
	ProxyContainer   *string `yaml:"proxy_container"`
	ContainerRuntime *string `yaml:"container_runtime"`
	ComposeFile      *string `yaml:"compose_file"`
	ComposeDir       *string `yaml:"compose_dir"`
	ProbeHost        *string `yaml:"probe_host"`
	ProbeTimeout     *string `yaml:"probe_timeout"`
	HistoryDB        *string `yaml:"history_db"`
	Listen           *string `yaml:"listen"`
	LogLevel         *string `yaml:"log_level"`
	LogFile          *string `yaml:"log_file"`
}

// Load builds the effective configuration. path may be empty to skip the
// file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 -- path comes from the operator's --config flag
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fc fileConfig
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && err != io.EOF {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := mergeFile(&cfg, fc); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, fc fileConfig) error {
	setIf(&cfg.DeployEnvFile, fc.DeployEnvFile)
	setIf(&cfg.NginxConfPath, fc.NginxConfPath)
	setIf(&cfg.NginxTemplate, fc.NginxTemplate)
	setIf(&cfg.ProxyControlURL, fc.ProxyControlURL)
	setIf(&cfg.ProxyContainer, fc.ProxyContainer)
	setIf(&cfg.ContainerRuntime, fc.ContainerRuntime)
	setIf(&cfg.ComposeFile, fc.ComposeFile)
	setIf(&cfg.ComposeDir, fc.ComposeDir)
	setIf(&cfg.ProbeHost, fc.ProbeHost)
	setIf(&cfg.HistoryDB, fc.HistoryDB)
	setIf(&cfg.Listen, fc.Listen)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogFile, fc.LogFile)

	if fc.ProbeTimeout != nil {
		d, err := time.ParseDuration(*fc.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("invalid probe_timeout %q: %w", *fc.ProbeTimeout, err)
		}
		cfg.ProbeTimeout = d
	}
	return nil
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func (c Config) validate() error {
	if c.DeployEnvFile == "" {
		return fmt.Errorf("config: deploy_env_file must not be empty")
	}
	if c.NginxConfPath == "" {
		return fmt.Errorf("config: nginx_conf_path must not be empty")
	}
	if c.ProxyControlURL == "" && c.ProxyContainer == "" {
		return fmt.Errorf("config: one of proxy_control_url or proxy_container is required")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("config: probe_timeout must be positive")
	}
	return nil
}

// applyEnv overrides file and default values from BGCTL_* variables.
func applyEnv(cfg *Config) {
	envString("BGCTL_DEPLOY_ENV_FILE", &cfg.DeployEnvFile)
	envString("BGCTL_NGINX_CONF", &cfg.NginxConfPath)
	envString("BGCTL_NGINX_TEMPLATE", &cfg.NginxTemplate)
	envString("BGCTL_PROXY_CONTROL_URL", &cfg.ProxyControlURL)
	envString("BGCTL_PROXY_CONTAINER", &cfg.ProxyContainer)
	envString("BGCTL_CONTAINER_RUNTIME", &cfg.ContainerRuntime)
	envString("BGCTL_COMPOSE_FILE", &cfg.ComposeFile)
	envString("BGCTL_COMPOSE_DIR", &cfg.ComposeDir)
	envString("BGCTL_PROBE_HOST", &cfg.ProbeHost)
	envDuration("BGCTL_PROBE_TIMEOUT", &cfg.ProbeTimeout)
	envString("BGCTL_HISTORY_DB", &cfg.HistoryDB)
	envString("BGCTL_LISTEN", &cfg.Listen)
	envString("BGCTL_LOG_LEVEL", &cfg.LogLevel)
	envString("BGCTL_LOG_FILE", &cfg.LogFile)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	// Bare integers mean seconds.
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}
