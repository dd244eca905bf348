// Package config provides ownmon's YAML-backed configuration: defaults,
// loading, and a diff reporter used for hot-reloadable settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "ownmon"

// Config is the top-level configuration tree.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`

	// Blacklist is a list of glob patterns (process names) that are never
	// turned into a focus session.
	Blacklist []string `yaml:"blacklist"`

	// Categories maps category id to display metadata.
	Categories []CategoryConfig `yaml:"categories"`

	// AppCategories maps a process-name glob pattern to a category id.
	// Resolution tries exact match first, then pattern match in
	// insertion order; unmatched apps fall back to DefaultCategoryID.
	AppCategories []AppCategoryConfig `yaml:"app_categories"`
}

// ServerConfig controls the localhost HTTP/WebSocket query layer.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	AuthToken         string        `yaml:"auth_token"`
	MaxConnections    int           `yaml:"max_connections"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

// MonitorConfig controls the poller and in-memory activity store.
type MonitorConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	AfkThreshold       time.Duration `yaml:"afk_threshold"`
	MinSessionDuration time.Duration `yaml:"min_session_duration"`
	TrackTitleChanges  bool          `yaml:"track_title_changes"`
	MaxSessions        int           `yaml:"max_sessions"`
	PruneInterval      time.Duration `yaml:"prune_interval"`
	PersistEveryTicks  int           `yaml:"persist_every_ticks"`
}

// CategoryConfig seeds the categories table.
type CategoryConfig struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
	Icon  string `yaml:"icon"`
}

// AppCategoryConfig seeds the app_categories table.
type AppCategoryConfig struct {
	Pattern    string `yaml:"pattern"`
	CategoryID int    `yaml:"category_id"`
}

// DefaultCategoryID is the fallback category ("Other") for apps matching
// no configured pattern.
const DefaultCategoryID = 1

// Load reads and parses a YAML config file, applying defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default
// configuration if the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              7070,
			MaxConnections:    100,
			BroadcastThrottle: 250 * time.Millisecond,
			SnapshotInterval:  10 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:       100 * time.Millisecond,
			AfkThreshold:       300 * time.Second,
			MinSessionDuration: 10 * time.Second,
			TrackTitleChanges:  false,
			MaxSessions:        1000,
			PruneInterval:      3600 * time.Second,
			PersistEveryTicks:  50,
		},
		Blacklist: []string{
			"*loginwindow*",
			"*explorer.exe",
			"*dwm.exe",
			"*ownmon*",
		},
		Categories: []CategoryConfig{
			{ID: 1, Name: "Other", Color: "#9e9e9e", Icon: "❔"},
			{ID: 2, Name: "Development", Color: "#4caf50", Icon: "💻"},
			{ID: 3, Name: "Communication", Color: "#2196f3", Icon: "💬"},
			{ID: 4, Name: "Browsing", Color: "#ff9800", Icon: "🌐"},
			{ID: 5, Name: "Media", Color: "#e91e63", Icon: "🎵"},
			{ID: 6, Name: "Productivity", Color: "#673ab7", Icon: "📝"},
		},
		AppCategories: []AppCategoryConfig{
			{Pattern: "*code*", CategoryID: 2},
			{Pattern: "*terminal*", CategoryID: 2},
			{Pattern: "*slack*", CategoryID: 3},
			{Pattern: "*discord*", CategoryID: 3},
			{Pattern: "*chrome*", CategoryID: 4},
			{Pattern: "*firefox*", CategoryID: 4},
			{Pattern: "*spotify*", CategoryID: 5},
		},
	}
}

// DefaultConfigPath returns the XDG-compliant default config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), appDirName, "config.yaml")
}

// DefaultStateDir returns the XDG-compliant default state directory, used
// for the database file and the single-instance lock.
func DefaultStateDir() string {
	return filepath.Join(defaultStateDir(), appDirName)
}

// DefaultPublicKeyPath returns the path the public signing key is mirrored
// to, per §6 of the external interface.
func DefaultPublicKeyPath() string {
	return filepath.Join(defaultConfigDir(), appDirName, "public_key.txt")
}

func defaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

func defaultStateDir() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed, limited to the fields the poller hot-reloads at runtime
// (server bind address changes require a restart and are not included).
func Diff(old, new *Config) []string {
	var changes []string

	if old.Monitor.AfkThreshold != new.Monitor.AfkThreshold {
		changes = append(changes, fmt.Sprintf("monitor.afk_threshold: %s → %s", old.Monitor.AfkThreshold, new.Monitor.AfkThreshold))
	}
	if old.Monitor.MinSessionDuration != new.Monitor.MinSessionDuration {
		changes = append(changes, fmt.Sprintf("monitor.min_session_duration: %s → %s", old.Monitor.MinSessionDuration, new.Monitor.MinSessionDuration))
	}
	if old.Monitor.PollInterval != new.Monitor.PollInterval {
		changes = append(changes, fmt.Sprintf("monitor.poll_interval: %s → %s", old.Monitor.PollInterval, new.Monitor.PollInterval))
	}
	if old.Monitor.TrackTitleChanges != new.Monitor.TrackTitleChanges {
		changes = append(changes, fmt.Sprintf("monitor.track_title_changes: %v → %v", old.Monitor.TrackTitleChanges, new.Monitor.TrackTitleChanges))
	}
	if old.Monitor.MaxSessions != new.Monitor.MaxSessions {
		changes = append(changes, fmt.Sprintf("monitor.max_sessions: %d → %d", old.Monitor.MaxSessions, new.Monitor.MaxSessions))
	}
	if old.Monitor.PruneInterval != new.Monitor.PruneInterval {
		changes = append(changes, fmt.Sprintf("monitor.prune_interval: %s → %s", old.Monitor.PruneInterval, new.Monitor.PruneInterval))
	}
	if !slices.Equal(old.Blacklist, new.Blacklist) {
		changes = append(changes, fmt.Sprintf("blacklist: %v → %v", old.Blacklist, new.Blacklist))
	}

	return changes
}
