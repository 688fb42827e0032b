// Package config loads the daemon's local preferences through a viper
// singleton, and separately reads the host repository's project-level
// sync settings out of its package.json (§3.4). It is grounded on the
// teacher's internal/config/config.go: the same config-file discovery
// walk (project-local, then XDG user config dir, then home directory)
// and the same SetEnvPrefix/SetEnvKeyReplacer/AutomaticEnv idiom,
// generalized from bd's many CLI-flag defaults to Sparkle's much smaller
// daemon-preference set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper singleton used for daemon-local
// preferences. Call once at process startup, before any Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("json")

	configFileSet := false

	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, ".sparkle", "config.json")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(configDir, "sparkle", "config.json")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(homeDir, ".sparkle", "config.json")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("SPARKLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 0) // 0 means "let the OS pick, persist the result" (§4.9.3)
	v.SetDefault("idle-shutdown", "30m")
	v.SetDefault("dark-mode", false)
	v.SetDefault("default-filter", "")
	v.SetDefault("git.author", "")
	v.SetDefault("git.no-gpg-sign", false)
	v.SetDefault("git.remote", "origin")
	v.SetDefault("fetch-interval", "15s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	return nil
}

// GetString returns a daemon-local preference as a string.
func GetString(key string) string { return v.GetString(key) }

// GetBool returns a daemon-local preference as a bool.
func GetBool(key string) bool { return v.GetBool(key) }

// GetInt returns a daemon-local preference as an int.
func GetInt(key string) int { return v.GetInt(key) }

// GetDuration returns a daemon-local preference that holds a
// time.Duration-compatible string (e.g. "30s", "15m"), unparsed; callers
// run it through time.ParseDuration.
func GetDuration(key string) string { return v.GetString(key) }

// Set overrides a daemon-local preference at runtime, used by the
// daemon's /api/config/setProject handler.
func Set(key string, value interface{}) { v.Set(key, value) }

// WriteConfigAs persists the current in-memory config to path as JSON.
func WriteConfigAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// ProjectConfig is the "sparkle_config" object read from the host
// repository's package.json (§3.4): which branch and directory hold the
// event store, and where the worktree should be checked out.
type ProjectConfig struct {
	GitBranch    string `json:"git_branch"`
	Directory    string `json:"directory"`
	WorktreePath string `json:"worktree_path"`
}

type packageJSON struct {
	SparkleConfig ProjectConfig `json:"sparkle_config"`
}

// LoadProjectConfig reads sparkle_config out of repoDir/package.json. A
// missing file or missing key yields the zero ProjectConfig with no
// error, since a brand new project may not have configured Sparkle yet;
// callers apply their own defaults (ConfigMissing is only raised once a
// write is actually attempted without enough information to proceed).
func LoadProjectConfig(repoDir string) (ProjectConfig, error) {
	data, err := os.ReadFile(filepath.Join(repoDir, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfig{}, nil
		}
		return ProjectConfig{}, fmt.Errorf("config: reading package.json: %w", err)
	}

	var parsed packageJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, fmt.Errorf("config: parsing package.json: %w", err)
	}
	return parsed.SparkleConfig, nil
}

// DefaultWorktreePath returns the conventional worktree location when
// ProjectConfig.WorktreePath wasn't set explicitly.
func (p ProjectConfig) DefaultWorktreePath(repoDir string) string {
	if p.WorktreePath != "" {
		return p.WorktreePath
	}
	return filepath.Join(filepath.Dir(repoDir), filepath.Base(repoDir)+"-sparkle-worktree")
}
