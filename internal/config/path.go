package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfigPath overrides the config location when --config is absent.
const EnvConfigPath = "COLLOQUY_CONFIG"

// ResolvePath picks the config file: the --config value, then
// $COLLOQUY_CONFIG, then $XDG_CONFIG_HOME/colloquy/config.jsonc, then
// ~/.config/colloquy/config.jsonc.
func ResolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return expandPath(explicit), nil
	}
	if fromEnv := strings.TrimSpace(os.Getenv(EnvConfigPath)); fromEnv != "" {
		return expandPath(fromEnv), nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "colloquy", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "colloquy", "config.jsonc"), nil
}

// resolveRelative anchors a settings path to the directory holding the
// config file. Empty stays empty so the default store location applies.
func resolveRelative(configPath string, path string) string {
	path = expandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
