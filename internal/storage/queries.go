package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ownmon/ownmon/internal/glob"
)

// MaxQueryLimit is the hard cap on any limit parameter (§4.5).
const MaxQueryLimit = 2000

// Stats is the shape returned by GetStats: today's totals.
type Stats struct {
	SessionCount int
	UniqueApps   int
	Keystrokes   uint64
	Clicks       uint64
	FocusSeconds float64
	MediaSeconds float64
}

// GetStats returns today's totals.
func (s *Store) GetStats() (Stats, error) {
	today := s.now().UTC().Format("2006-01-02")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT process_name),
			COALESCE(SUM(keystrokes), 0),
			COALESCE(SUM(clicks), 0),
			COALESCE(SUM((julianday(end_time) - julianday(start_time)) * 86400.0), 0)
		FROM sessions WHERE substr(start_time, 1, 10) = ?`, today).
		Scan(&stats.SessionCount, &stats.UniqueApps, &stats.Keystrokes, &stats.Clicks, &stats.FocusSeconds)
	if err != nil {
		return Stats{}, fmt.Errorf("storage: GetStats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(duration_secs), 0) FROM media WHERE substr(start_time, 1, 10) = ?`, today).
		Scan(&stats.MediaSeconds)
	if err != nil {
		return Stats{}, fmt.Errorf("storage: GetStats media: %w", err)
	}
	return stats, nil
}

// SessionRow is a session row plus its computed duration and resolved
// category, as returned by QuerySessions.
type SessionRow struct {
	ID           int64
	ProcessName  string
	WindowTitle  string
	StartTime    string
	EndTime      string
	Keystrokes   uint64
	Clicks       uint64
	Scrolls      uint64
	IsIdle       bool
	Hash         string
	Signature    string
	PrevHash     string
	DurationSecs float64
	CategoryID   int
}

// SessionQuery bundles QuerySessions' optional filters.
type SessionQuery struct {
	Date       string // YYYY-MM-DD
	From, To   string // RFC3339
	AppPattern string
	Category   int // accepted but not applied as a filter
	Limit      int
	Offset     int
	OrderDesc  bool
}

// QuerySessions implements §6's QuerySessions. Defaults to today when no
// date/from/to filter is given, to avoid a full scan; limit is capped at
// MaxQueryLimit. q.Category does not filter the result: every returned
// row carries its resolved CategoryID instead.
func (s *Store) QuerySessions(q SessionQuery) ([]SessionRow, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	where := "1=1"
	var args []any

	switch {
	case q.From != "" || q.To != "":
		if q.From != "" {
			where += " AND start_time >= ?"
			args = append(args, q.From)
		}
		if q.To != "" {
			where += " AND start_time <= ?"
			args = append(args, q.To)
		}
	case q.Date != "":
		where += " AND substr(start_time, 1, 10) = ?"
		args = append(args, q.Date)
	default:
		where += " AND substr(start_time, 1, 10) = ?"
		args = append(args, s.now().UTC().Format("2006-01-02"))
	}

	if q.AppPattern != "" {
		where += " AND process_name LIKE ?"
		args = append(args, likePattern(q.AppPattern))
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	order := "ASC"
	if q.OrderDesc {
		order = "DESC"
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM sessions WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: QuerySessions count: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT id, process_name, window_title, start_time, end_time, keystrokes, clicks, scrolls, is_idle,
			COALESCE(hash, ''), COALESCE(signature, ''), COALESCE(prev_hash, ''),
			(julianday(end_time) - julianday(start_time)) * 86400.0
		FROM sessions WHERE %s ORDER BY start_time %s LIMIT ? OFFSET ?`, where, order)
	rows, err := s.db.QueryContext(ctx, listQuery, append(append([]any{}, args...), limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: QuerySessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var isIdle int
		if err := rows.Scan(&r.ID, &r.ProcessName, &r.WindowTitle, &r.StartTime, &r.EndTime,
			&r.Keystrokes, &r.Clicks, &r.Scrolls, &isIdle, &r.Hash, &r.Signature, &r.PrevHash, &r.DurationSecs); err != nil {
			return nil, 0, fmt.Errorf("storage: QuerySessions scan: %w", err)
		}
		r.IsIdle = isIdle != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()
	// Category resolution queries the database again, so it runs only after
	// rows has released the store's single connection.
	for i := range out {
		out[i].CategoryID = s.resolveCategoryLocked(ctx, out[i].ProcessName)
	}
	return out, total, nil
}

// resolveCategoryLocked implements the category resolution order (§4.4):
// exact match first, then pattern match in insertion order, falling back
// to config.DefaultCategoryID.
func (s *Store) resolveCategoryLocked(ctx context.Context, process string) int {
	var exact int
	err := s.db.QueryRowContext(ctx, `SELECT category_id FROM app_categories WHERE process_pattern = ?`, process).Scan(&exact)
	if err == nil {
		return exact
	}

	rows, err := s.db.QueryContext(ctx, `SELECT process_pattern, category_id FROM app_categories ORDER BY ROWID ASC`)
	if err != nil {
		return defaultCategoryID
	}
	defer rows.Close()

	type patCat struct {
		pattern string
		id      int
	}
	for rows.Next() {
		var pc patCat
		if err := rows.Scan(&pc.pattern, &pc.id); err != nil {
			continue
		}
		if glob.Match(pc.pattern, process) {
			return pc.id
		}
	}
	return defaultCategoryID
}

const defaultCategoryID = 1

// MediaRow mirrors a persisted media row.
type MediaRow struct {
	ID           int64
	Title        string
	Artist       string
	Album        string
	SourceApp    string
	StartTime    string
	EndTime      string
	DurationSecs float64
}

// MediaQuery bundles QueryMedia's optional filters.
type MediaQuery struct {
	Date             string
	From, To         string
	ArtistPattern    string
	SourceAppPattern string
	Limit, Offset    int
	OrderDesc        bool
}

// QueryMedia implements §6's QueryMedia.
func (s *Store) QueryMedia(q MediaQuery) ([]MediaRow, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	where := "1=1"
	var args []any
	switch {
	case q.From != "" || q.To != "":
		if q.From != "" {
			where += " AND start_time >= ?"
			args = append(args, q.From)
		}
		if q.To != "" {
			where += " AND start_time <= ?"
			args = append(args, q.To)
		}
	case q.Date != "":
		where += " AND substr(start_time, 1, 10) = ?"
		args = append(args, q.Date)
	default:
		where += " AND substr(start_time, 1, 10) = ?"
		args = append(args, s.now().UTC().Format("2006-01-02"))
	}
	if q.ArtistPattern != "" {
		where += " AND artist LIKE ?"
		args = append(args, likePattern(q.ArtistPattern))
	}
	if q.SourceAppPattern != "" {
		where += " AND source_app LIKE ?"
		args = append(args, likePattern(q.SourceAppPattern))
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	order := "ASC"
	if q.OrderDesc {
		order = "DESC"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: QueryMedia count: %w", err)
	}

	listQuery := fmt.Sprintf(`SELECT id, title, artist, album, source_app, start_time, end_time, duration_secs
		FROM media WHERE %s ORDER BY start_time %s LIMIT ? OFFSET ?`, where, order)
	rows, err := s.db.QueryContext(ctx, listQuery, append(append([]any{}, args...), limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: QueryMedia: %w", err)
	}
	defer rows.Close()

	var out []MediaRow
	for rows.Next() {
		var r MediaRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Artist, &r.Album, &r.SourceApp, &r.StartTime, &r.EndTime, &r.DurationSecs); err != nil {
			return nil, 0, fmt.Errorf("storage: QueryMedia scan: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// HourlyBucket is one hour's aggregate for GetHourly.
type HourlyBucket struct {
	Hour         int
	Sessions     int
	Keystrokes   uint64
	Clicks       uint64
	FocusSeconds float64
}

// GetHourly aggregates a single date's sessions into 24 hourly buckets.
func (s *Store) GetHourly(date string) ([]HourlyBucket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', start_time) AS INTEGER) AS hour,
			COUNT(*),
			COALESCE(SUM(keystrokes), 0),
			COALESCE(SUM(clicks), 0),
			SUM((julianday(end_time) - julianday(start_time)) * 86400.0) AS secs
		FROM sessions WHERE substr(start_time, 1, 10) = ?
		GROUP BY hour ORDER BY hour ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("storage: GetHourly: %w", err)
	}
	defer rows.Close()

	buckets := make([]HourlyBucket, 24)
	for i := range buckets {
		buckets[i].Hour = i
	}
	for rows.Next() {
		var hour int
		var b HourlyBucket
		if err := rows.Scan(&hour, &b.Sessions, &b.Keystrokes, &b.Clicks, &b.FocusSeconds); err != nil {
			return nil, fmt.Errorf("storage: GetHourly scan: %w", err)
		}
		if hour >= 0 && hour < 24 {
			b.Hour = hour
			buckets[hour] = b
		}
	}
	return buckets, rows.Err()
}

// TimelineDay is one day's aggregate for GetTimeline.
type TimelineDay struct {
	Date         string
	FocusSeconds float64
	Keystrokes   uint64
	Clicks       uint64
	MediaSeconds float64
	SessionCount int
	TopApp       string
}

// GetTimeline aggregates the last `days` calendar days (including today)
// into per-day totals, oldest first.
func (s *Store) GetTimeline(days int) ([]TimelineDay, error) {
	if days <= 0 {
		days = 7
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	since := s.now().UTC().AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(start_time, 1, 10) AS d,
			SUM((julianday(end_time) - julianday(start_time)) * 86400.0),
			COALESCE(SUM(keystrokes), 0),
			COALESCE(SUM(clicks), 0),
			COUNT(*)
		FROM sessions WHERE substr(start_time, 1, 10) >= ?
		GROUP BY d ORDER BY d ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("storage: GetTimeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineDay
	for rows.Next() {
		var t TimelineDay
		if err := rows.Scan(&t.Date, &t.FocusSeconds, &t.Keystrokes, &t.Clicks, &t.SessionCount); err != nil {
			return nil, fmt.Errorf("storage: GetTimeline scan: %w", err)
		}
		out = append(out, t)
	}

	for i := range out {
		mediaSecs, err := s.mediaSecondsForDate(ctx, out[i].Date)
		if err != nil {
			return nil, err
		}
		out[i].MediaSeconds = mediaSecs

		topApp, err := s.topAppForDate(ctx, out[i].Date)
		if err != nil {
			return nil, err
		}
		out[i].TopApp = topApp
	}
	return out, rows.Err()
}

func (s *Store) mediaSecondsForDate(ctx context.Context, date string) (float64, error) {
	var secs float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration_secs), 0) FROM media WHERE substr(start_time, 1, 10) = ?`, date).
		Scan(&secs)
	if err != nil {
		return 0, fmt.Errorf("storage: GetTimeline media: %w", err)
	}
	return secs, nil
}

func (s *Store) topAppForDate(ctx context.Context, date string) (string, error) {
	var app string
	err := s.db.QueryRowContext(ctx, `
		SELECT process_name FROM sessions WHERE substr(start_time, 1, 10) = ?
		GROUP BY process_name
		ORDER BY SUM((julianday(end_time) - julianday(start_time)) * 86400.0) DESC
		LIMIT 1`, date).Scan(&app)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: GetTimeline top app: %w", err)
	}
	return app, nil
}

// Category mirrors a categories row.
type Category struct {
	ID    int
	Name  string
	Color string
	Icon  string
}

// GetCategories returns all configured categories.
func (s *Store) GetCategories() ([]Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color, icon FROM categories ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: GetCategories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Icon); err != nil {
			return nil, fmt.Errorf("storage: GetCategories scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetAppCategory resolves a single process name to its category id, using
// the same exact-then-pattern resolution order as QuerySessions.
func (s *Store) GetAppCategory(name string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.resolveCategoryLocked(ctx, name), nil
}

// ConfigRow is a single config table row.
type ConfigRow struct {
	Key, Value, Description, UpdatedAt string
}

// GetConfig returns all config rows.
func (s *Store) GetConfig() ([]ConfigRow, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value, COALESCE(description, ''), updated_at FROM config ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: GetConfig: %w", err)
	}
	defer rows.Close()

	var out []ConfigRow
	for rows.Next() {
		var c ConfigRow
		if err := rows.Scan(&c.Key, &c.Value, &c.Description, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: GetConfig scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// likePattern turns a simple glob (`*`/`?`) into a SQL LIKE pattern. Only
// used for this package's own SQL prefilter; the authoritative glob
// semantics (§4.4, no backtracking) live in the glob package and are
// applied to the category resolver above, not to SQL text matching.
func likePattern(pattern string) string {
	out := make([]rune, 0, len(pattern))
	for _, r := range pattern {
		switch r {
		case '*':
			out = append(out, '%')
		case '?':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
