package prooflabel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile = "config.json"

	configPathEnv     = "VEILLE_CONFIG"
	logLevelEnv       = "VEILLE_LOG_LEVEL"
	arbitrationDSNEnv = "VEILLE_ARBITRATION_DSN"
	embedderAPIKeyEnv = "VEILLE_EMBEDDER_API_KEY"
	redisAddrEnv      = "VEILLE_REDIS_ADDR"
)

// ResolveConfigPath returns the explicit path, the VEILLE_CONFIG value or config.json.
func ResolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(configPathEnv)); p != "" {
		return p
	}
	return defaultConfigFile
}

// LoadConfig loads configuration from the given path. A missing file yields
// the defaults. Environment overrides are applied last.
func LoadConfig(path string) (Config, error) {
	path = ResolveConfigPath(path)
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnvOverrides()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()
	if cfg.Embedder.Cache.Kind == CacheDisk && cfg.Embedder.Cache.Dir != "" {
		if err := os.MkdirAll(cfg.Embedder.Cache.Dir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	path = ResolveConfigPath(path)
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	var (
		data []byte
		err  error
	)
	if isYAMLPath(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(arbitrationDSNEnv); v != "" {
		c.Arbitration.DSN = v
	}
	if v := os.Getenv(embedderAPIKeyEnv); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Embedder.Cache.RedisAddr = v
	}
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
