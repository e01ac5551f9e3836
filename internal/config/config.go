package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for convograb.
type Config struct {
	General   GeneralConfig             `json:"general"`
	HTTP      HTTPConfig                `json:"http"`
	Browser   BrowserConfig             `json:"browser"`
	Providers map[string]ProviderConfig `json:"providers"`
	History   HistoryConfig             `json:"history"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`   // optional log file path
	RulesDir  string `json:"rulesDir,omitempty"`  // directory of YAML selector override files
	OutputDir string `json:"outputDir,omitempty"` // where `parse -o` writes by default
}

// HTTPConfig tunes the shared HTTP client used by all adapters.
type HTTPConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	Retries        int `json:"retries"` // extra attempts after the first
}

// BrowserConfig configures the Chrome capture bridge.
type BrowserConfig struct {
	ProfileDir string `json:"profileDir,omitempty"` // Chrome user data dir (persists sessions)
	Headless   bool   `json:"headless"`
}

// ProviderConfig tunes one provider's adapters. Selectors and URL
// patterns override the compiled-in defaults when a site ships a DOM
// change before the binary catches up.
type ProviderConfig struct {
	Enabled     bool              `json:"enabled"`
	Selectors   map[string]string `json:"selectors,omitempty"`
	URLPatterns FlexStringList    `json:"urlPatterns,omitempty"`
	AuthToken   string            `json:"authToken,omitempty"` // optional bearer token, skips browser capture
}

// HistoryConfig configures the local SQLite archive of parsed
// conversations.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

// MetricsConfig configures the observability / Prometheus metrics.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.convograb).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".convograb"
	}
	return filepath.Join(home, ".convograb")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.RulesDir = ExpandPath(cfg.General.RulesDir)
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.HTTP.TimeoutSeconds < 1 {
		errs = append(errs, "http.timeoutSeconds must be >= 1")
	}
	if cfg.HTTP.Retries < 0 || cfg.HTTP.Retries > 10 {
		errs = append(errs, "http.retries must be between 0 and 10")
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
	}
	if cfg.History.RetentionDays < 1 {
		errs = append(errs, "history.retentionDays must be >= 1")
	}

	// URL pattern overrides must compile; a broken regex would silently
	// disable an adapter.
	for name, pc := range cfg.Providers {
		for _, pat := range pc.URLPatterns {
			if _, err := regexp.Compile(pat); err != nil {
				errs = append(errs, fmt.Sprintf("providers.%s: invalid urlPattern %q: %v", name, pat, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
