package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectorRules is one YAML override file: extra CSS selectors and URL
// patterns for a provider's adapters. Rules files let users patch a
// provider DOM change without waiting for a new binary.
type SelectorRules struct {
	Provider    string            `yaml:"provider"`
	Selectors   map[string]string `yaml:"selectors"`
	URLPatterns []string          `yaml:"urlPatterns"`
}

// LoadRules loads selector rules from YAML files in a directory.
// Files must have .yaml or .yml extension; unreadable or malformed
// files are logged and skipped.
func LoadRules(dir string, logger *slog.Logger) ([]SelectorRules, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("rules directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var rules []SelectorRules
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read rules file", "path", path, "err", err)
			continue
		}

		var r SelectorRules
		if err := yaml.Unmarshal(data, &r); err != nil {
			logger.Warn("cannot parse rules file", "path", path, "err", err)
			continue
		}

		if r.Provider == "" {
			r.Provider = strings.TrimSuffix(name, filepath.Ext(name))
		}

		logger.Info("loaded selector rules", "provider", r.Provider, "path", path)
		rules = append(rules, r)
	}

	return rules, nil
}

// ApplyRules merges loaded rules into the provider configs. Rule
// selectors win over config selectors; URL patterns append.
func ApplyRules(cfg *Config, rules []SelectorRules) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for _, r := range rules {
		pc := cfg.Providers[r.Provider]
		if pc.Selectors == nil && len(r.Selectors) > 0 {
			pc.Selectors = make(map[string]string)
		}
		for k, v := range r.Selectors {
			pc.Selectors[k] = v
		}
		pc.URLPatterns = append(pc.URLPatterns, r.URLPatterns...)
		cfg.Providers[r.Provider] = pc
	}
}
