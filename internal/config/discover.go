// internal/config/discover.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfig names the environment variable that overrides discovery.
const EnvConfig = "MEDIARELAY_CONFIG"

// systemPath is the last location searched.
const systemPath = "/etc/mediarelay/config.toml"

// DefaultPath is where `mediarelay init` writes the config: under
// $XDG_CONFIG_HOME, or ~/.config when that is unset.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "./config.toml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mediarelay", "config.toml")
}

// SearchPaths lists the locations Discover tries when MEDIARELAY_CONFIG is
// unset, in order.
func SearchPaths() []string {
	return []string{"./config.toml", DefaultPath(), systemPath}
}

// Discover resolves the config file for mediarelayd. MEDIARELAY_CONFIG wins
// and must point at an existing file; otherwise the first of SearchPaths
// that exists is used.
func Discover() (string, error) {
	if override := os.Getenv(EnvConfig); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvConfig, override, err)
		}
		return override, nil
	}

	candidates := SearchPaths()
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (set %s or run `mediarelay init`), checked: %s",
		EnvConfig, strings.Join(candidates, ", "))
}

// EnvFileFor returns the dotenv file that sits beside configPath. The file
// need not exist; LoadEnvFile ignores missing files.
func EnvFileFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}
