// Package storage is the persistence layer: schema bootstrap, durable
// append of sessions/media with chained hashes and signatures, daily
// Merkle commitment, and parameterized range/pattern queries.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/integrity"

	_ "modernc.org/sqlite"
)

// writeHealth tracks consecutive append-failure counts, mirrored on the
// teacher's source-health consecutive-failure counter: append failures are
// logged and batched past (§7 — Database failures are non-fatal in steady
// state), but a run of failures is worth surfacing.
type writeHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastErr             string
}

func (h *writeHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastErr = ""
}

func (h *writeHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err.Error()
}

func (h *writeHealth) snapshot() (consecutiveFailures int, lastErr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures, h.lastErr
}

// Store owns the single database connection. All writes are serialized by
// mu: sqlite tolerates only one writer at a time, and this mirrors the
// store-level mutex idiom used elsewhere in this codebase, generalized to
// guard *sql.DB instead of in-memory state.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time

	keys   *integrity.KeyManager
	health writeHealth
}

// Open opens (creating if absent) the sqlite database at path, sets WAL
// mode with synchronous=NORMAL, and bootstraps the schema on first open.
// A nil KeyManager is valid: sessions are then persisted without
// hash/signature/chain fields, per §4.2's graceful degradation.
func Open(path string, cfg *config.Config, keys *integrity.KeyManager) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// A single physical connection keeps the in-process writer mutex and
	// sqlite's own single-writer model aligned, and is required for
	// ":memory:" / "file::memory:?cache=shared" databases to persist
	// across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return nil, fmt.Errorf("storage: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		return nil, fmt.Errorf("storage: set synchronous: %w", err)
	}

	s := &Store{db: db, now: time.Now, keys: keys}
	if err := s.bootstrap(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthSnapshot reports the current consecutive append-failure count, for
// logging/diagnostics surfaces.
func (s *Store) HealthSnapshot() (consecutiveFailures int, lastErr string) {
	return s.health.snapshot()
}

// DrainAndAppend implements poller.Persister: §4.5's "append with chain"
// algorithm. It is the sole writer of sessions.
func (s *Store) DrainAndAppend(sessions []*activity.FocusSession, media []*activity.MediaSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tip, err := s.chainTipLocked(ctx)
	if err != nil {
		log.Printf("storage: failed to read chain tip, continuing without chaining: %v", err)
		tip = ""
	}

	for _, sess := range sessions {
		var hash, signature, prevHash *string
		if s.keys != nil && s.keys.HasKey() {
			h := integrity.HashSession(sess.Process, sess.Title, sess.Start.UTC().Format(time.RFC3339), sess.End.UTC().Format(time.RFC3339), sess.Keystrokes, sess.Clicks, sess.Scrolls, tip)
			sig := s.keys.Sign([]byte(h))
			hash = &h
			signature = &sig
			if tip != "" {
				prevHash = &tip
			}
			tip = h
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions(process_name, window_title, start_time, end_time, keystrokes, clicks, scrolls, is_idle, hash, signature, prev_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.Process, sess.Title, sess.Start.UTC().Format(time.RFC3339), sess.End.UTC().Format(time.RFC3339),
			sess.Keystrokes, sess.Clicks, sess.Scrolls, boolToInt(sess.Idle), hash, signature, prevHash)
		if err != nil {
			log.Printf("storage: insert session failed, continuing: %v", err)
			s.health.recordFailure(err)
			continue
		}
		s.health.recordSuccess()
	}

	for _, m := range media {
		duration := m.End.Sub(m.Start).Seconds()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO media(title, artist, album, source_app, start_time, end_time, duration_secs)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.Title, m.Artist, m.Album, m.SourceApp, m.Start.UTC().Format(time.RFC3339), m.End.UTC().Format(time.RFC3339), duration)
		if err != nil {
			log.Printf("storage: insert media failed, continuing: %v", err)
			s.health.recordFailure(err)
			continue
		}
		s.health.recordSuccess()
	}
}

// chainTipLocked returns the hash of the most recently inserted session
// (by id, since insertion order is append order), or "" if the log is
// empty or no session has a hash. Caller holds s.mu.
func (s *Store) chainTipLocked(ctx context.Context) (string, error) {
	var tip sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM sessions WHERE hash IS NOT NULL ORDER BY id DESC LIMIT 1`).Scan(&tip)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !tip.Valid {
		return "", nil
	}
	return tip.String, nil
}

// ComputeDailyIntegrity implements §4.5's daily commitment: read all
// session hashes for date (YYYY-MM-DD, UTC) in ascending start-time order,
// compute the Merkle root, look up the prior date's root, sign, and upsert.
// No-op if date has no sessions, or none with a hash (no key was available
// that day).
func (s *Store) ComputeDailyIntegrity(date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT hash FROM sessions
		WHERE hash IS NOT NULL AND substr(start_time, 1, 10) = ?
		ORDER BY start_time ASC`, date)
	if err != nil {
		return fmt.Errorf("storage: query day hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return fmt.Errorf("storage: scan day hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	root, ok := integrity.MerkleRoot(hashes)
	if !ok {
		return fmt.Errorf("storage: could not compute merkle root for %s", date)
	}

	prior, err := s.priorDayRootLocked(ctx, date)
	if err != nil {
		return fmt.Errorf("storage: prior day root: %w", err)
	}
	if prior == "" {
		prior = "genesis"
	}

	var signature *string
	if s.keys != nil && s.keys.HasKey() {
		sig := s.keys.Sign([]byte(root + "|" + prior + "|" + date))
		signature = &sig
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_integrity(date, merkle_root, prev_day_root, session_count, signature)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET merkle_root=excluded.merkle_root, prev_day_root=excluded.prev_day_root, session_count=excluded.session_count, signature=excluded.signature`,
		date, root, prior, len(hashes), signature)
	if err != nil {
		return fmt.Errorf("storage: upsert daily_integrity: %w", err)
	}
	return nil
}

func (s *Store) priorDayRootLocked(ctx context.Context, date string) (string, error) {
	var root sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT merkle_root FROM daily_integrity WHERE date < ? ORDER BY date DESC LIMIT 1`, date).Scan(&root)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return root.String, nil
}

// RecoverMissingDailyIntegrity implements the startup-recovery step (§4.6):
// compute daily integrity for every date that has sessions but no
// integrity row. Most-recent-first order is acceptable since each row
// looks up its own prior independently.
func (s *Store) RecoverMissingDailyIntegrity() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT substr(start_time, 1, 10) AS d FROM sessions
		WHERE hash IS NOT NULL
		AND d NOT IN (SELECT date FROM daily_integrity)
		ORDER BY d DESC`)
	if err != nil {
		return fmt.Errorf("storage: query missing daily integrity dates: %w", err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return err
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range dates {
		if err := s.ComputeDailyIntegrity(d); err != nil {
			log.Printf("storage: recovery of daily integrity for %s failed: %v", d, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
