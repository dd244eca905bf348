package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ownmon/ownmon/internal/config"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// tableCreationQueries returns the normative schema (§6): sessions, media,
// blacklist, categories, app_categories, config, daily_integrity, plus the
// indexes on sessions(start_time) and media(start_time).
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			process_name TEXT NOT NULL,
			window_title TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			keystrokes INTEGER NOT NULL DEFAULT 0,
			clicks INTEGER NOT NULL DEFAULT 0,
			scrolls INTEGER NOT NULL DEFAULT 0,
			is_idle INTEGER NOT NULL DEFAULT 0,
			hash TEXT,
			signature TEXT,
			prev_hash TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_process_name ON sessions(process_name);`,

		`CREATE TABLE IF NOT EXISTS media (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			artist TEXT,
			album TEXT,
			source_app TEXT,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_secs REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_media_start_time ON media(start_time);`,

		`CREATE TABLE IF NOT EXISTS daily_integrity (
			date TEXT PRIMARY KEY,
			merkle_root TEXT NOT NULL,
			prev_day_root TEXT NOT NULL,
			session_count INTEGER NOT NULL,
			signature TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS blacklist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT NOT NULL,
			description TEXT,
			created_at TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT,
			icon TEXT,
			created_at TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS app_categories (
			process_pattern TEXT PRIMARY KEY,
			category_id INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at TEXT NOT NULL
		);`,
	}
}

// bootstrap creates the schema if absent and seeds defaults from cfg on an
// empty database. Only *Database* failures here are fatal (§7); callers
// abort startup when this returns an error.
func (s *Store) bootstrap(cfg *config.Config) error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableCreationQueries() {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("storage: bootstrap: %s: %w", q, err)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return fmt.Errorf("storage: bootstrap: count categories: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.seedDefaults(ctx, cfg)
}

func (s *Store) seedDefaults(ctx context.Context, cfg *config.Config) error {
	now := s.now().UTC().Format(time.RFC3339)

	for _, pattern := range cfg.Blacklist {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO blacklist(pattern, description, created_at) VALUES (?, ?, ?)`,
			pattern, "default blacklist entry", now); err != nil {
			return fmt.Errorf("storage: seed blacklist: %w", err)
		}
	}

	for _, c := range cfg.Categories {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO categories(id, name, color, icon, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Color, c.Icon, now); err != nil {
			return fmt.Errorf("storage: seed categories: %w", err)
		}
	}

	for _, a := range cfg.AppCategories {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO app_categories(process_pattern, category_id) VALUES (?, ?)`,
			a.Pattern, a.CategoryID); err != nil {
			return fmt.Errorf("storage: seed app_categories: %w", err)
		}
	}

	defaults := map[string]struct {
		value, description string
	}{
		"min_session_duration_secs": {fmt.Sprintf("%d", int(cfg.Monitor.MinSessionDuration.Seconds())), "minimum session duration to persist"},
		"afk_threshold_secs":        {fmt.Sprintf("%d", int(cfg.Monitor.AfkThreshold.Seconds())), "seconds of no input before idle"},
		"poll_interval_ms":          {fmt.Sprintf("%d", cfg.Monitor.PollInterval.Milliseconds()), "poller tick interval"},
		"track_title_changes":       {fmt.Sprintf("%v", cfg.Monitor.TrackTitleChanges), "split sessions on title change"},
		"max_sessions":              {fmt.Sprintf("%d", cfg.Monitor.MaxSessions), "in-memory history cap"},
		"prune_interval_secs":       {fmt.Sprintf("%d", int(cfg.Monitor.PruneInterval.Seconds())), "history prune interval"},
	}
	for key, d := range defaults {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO config(key, value, description, updated_at) VALUES (?, ?, ?, ?)`,
			key, d.value, d.description, now); err != nil {
			return fmt.Errorf("storage: seed config: %w", err)
		}
	}
	return nil
}
