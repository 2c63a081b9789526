package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// loadFile overlays a configuration file onto cfg based on its extension.
// Supports: .yaml/.yml, .json, .toml. Keys absent from the file keep their
// current (default) values. A leading '~' in the path is expanded.
func loadFile(path string, cfg *Config) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return err
		}
	case ".json":
		if err := json.Unmarshal(b, cfg); err != nil {
			return err
		}
	case ".toml":
		if err := toml.Unmarshal(b, cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
