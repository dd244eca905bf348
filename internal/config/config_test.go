package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOrDefaultMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Monitor.AfkThreshold != 300*time.Second {
		t.Fatalf("default AfkThreshold = %s, want 300s", cfg.Monitor.AfkThreshold)
	}
	if cfg.Monitor.MinSessionDuration != 10*time.Second {
		t.Fatalf("default MinSessionDuration = %s, want 10s", cfg.Monitor.MinSessionDuration)
	}
	if cfg.Monitor.PollInterval != 100*time.Millisecond {
		t.Fatalf("default PollInterval = %s, want 100ms", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.MaxSessions != 1000 {
		t.Fatalf("default MaxSessions = %d, want 1000", cfg.Monitor.MaxSessions)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
monitor:
  afk_threshold: 60s
  min_session_duration: 5s
blacklist:
  - "*.tmp"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.AfkThreshold != 60*time.Second {
		t.Fatalf("AfkThreshold = %s, want 60s", cfg.Monitor.AfkThreshold)
	}
	if cfg.Monitor.MinSessionDuration != 5*time.Second {
		t.Fatalf("MinSessionDuration = %s, want 5s", cfg.Monitor.MinSessionDuration)
	}
	if len(cfg.Blacklist) != 1 || cfg.Blacklist[0] != "*.tmp" {
		t.Fatalf("Blacklist = %v, want [*.tmp]", cfg.Blacklist)
	}
	// Unset fields retain their defaults.
	if cfg.Monitor.MaxSessions != 1000 {
		t.Fatalf("MaxSessions = %d, want default 1000", cfg.Monitor.MaxSessions)
	}
}

func TestDiffDetectsMonitorChanges(t *testing.T) {
	old := defaultConfig()
	updated := defaultConfig()
	updated.Monitor.AfkThreshold = 60 * time.Second
	updated.Blacklist = append(updated.Blacklist, "*.exe")

	changes := Diff(old, updated)
	if len(changes) < 2 {
		t.Fatalf("Diff() = %v, want at least 2 changes", changes)
	}
}

func TestDiffNoChanges(t *testing.T) {
	old := defaultConfig()
	same := defaultConfig()
	if changes := Diff(old, same); len(changes) != 0 {
		t.Fatalf("Diff(identical configs) = %v, want empty", changes)
	}
}
