package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 6969
	DefaultHost           = "127.0.0.1"
	DefaultBackendName    = "gemini"
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
)

// Backend holds the credentials for one web backend. Cookie values come out
// of the config file or the environment; the bridge never touches browser
// cookie stores itself.
type Backend struct {
	Name string `json:"name" yaml:"name"`

	// Claude: the sessionKey cookie.
	SessionKey string `json:"session_key,omitempty" yaml:"session_key,omitempty"`

	// Gemini: the __Secure-1PSID / __Secure-1PSIDTS cookie pair.
	Secure1PSID   string `json:"secure_1psid,omitempty" yaml:"secure_1psid,omitempty"`
	Secure1PSIDTS string `json:"secure_1psidts,omitempty" yaml:"secure_1psidts,omitempty"`

	// Model to request upstream, e.g. "gemini-2.0-flash" or
	// "claude-3-sonnet-20240229".
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

type Config struct {
	Host           string    `json:"host,omitempty" yaml:"host,omitempty"`
	Port           int       `json:"port,omitempty" yaml:"port,omitempty"`
	DefaultBackend string    `json:"default_backend,omitempty" yaml:"default_backend,omitempty"`
	Backends       []Backend `json:"backends" yaml:"backends"`
}

// Backend returns the named backend entry, or nil.
func (c *Config) Backend(name string) *Backend {
	for i := range c.Backends {
		if c.Backends[i].Name == name {
			return &c.Backends[i]
		}
	}

	return nil
}

// Manager loads and caches the configuration. YAML takes precedence over
// JSON when both files exist.
type Manager struct {
	jsonPath    string
	yamlPath    string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		jsonPath: filepath.Join(baseDir, DefaultConfigFilename),
		yamlPath: filepath.Join(baseDir, DefaultYAMLFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	var cfg Config

	if data, err := os.ReadFile(m.yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	} else {
		data, err := os.ReadFile(m.jsonPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	m.configValue.Store(&cfg)

	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Fall back to defaults if loading fails
		cfg = &Config{}
		applyDefaults(cfg)
		applyEnvOverrides(cfg)
	}

	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.jsonPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.jsonPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func (m *Manager) GetPath() string {
	if _, err := os.Stat(m.yamlPath); err == nil {
		return m.yamlPath
	}

	return m.jsonPath
}

func (m *Manager) Exists() bool {
	if _, err := os.Stat(m.yamlPath); err == nil {
		return true
	}

	_, err := os.Stat(m.jsonPath)

	return err == nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = DefaultBackendName
	}
}

// applyEnvOverrides lets cookie material live outside the config file
// (typically a .env the CLI loads at startup).
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]struct {
		backend string
		set     func(*Backend, string)
	}{
		"WEBAI_CLAUDE_SESSION_KEY":    {"claude", func(b *Backend, v string) { b.SessionKey = v }},
		"WEBAI_GEMINI_SECURE_1PSID":   {"gemini", func(b *Backend, v string) { b.Secure1PSID = v }},
		"WEBAI_GEMINI_SECURE_1PSIDTS": {"gemini", func(b *Backend, v string) { b.Secure1PSIDTS = v }},
	}

	for key, override := range overrides {
		value := os.Getenv(key)
		if value == "" {
			continue
		}

		backend := cfg.Backend(override.backend)
		if backend == nil {
			cfg.Backends = append(cfg.Backends, Backend{Name: override.backend})
			backend = &cfg.Backends[len(cfg.Backends)-1]
		}

		override.set(backend, value)
	}
}
