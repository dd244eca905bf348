package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/integrity"
	"github.com/ownmon/ownmon/internal/secretstore"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.MinSessionDuration = 10 * time.Second
	cfg.Monitor.AfkThreshold = 300 * time.Second
	cfg.Monitor.PollInterval = 100 * time.Millisecond
	cfg.Monitor.MaxSessions = 1000
	cfg.Monitor.PruneInterval = 3600 * time.Second
	cfg.Blacklist = []string{"*dwm.exe"}
	cfg.Categories = []config.CategoryConfig{
		{ID: 1, Name: "Other", Color: "#9e9e9e", Icon: "?"},
		{ID: 2, Name: "Development", Color: "#4caf50", Icon: "dev"},
	}
	cfg.AppCategories = []config.AppCategoryConfig{
		{Pattern: "*code*", CategoryID: 2},
	}
	return cfg
}

func openTestStore(t *testing.T, keys *integrity.KeyManager) *Store {
	t.Helper()
	// Each test gets its own named in-memory database: a shared DSN across
	// tests in one process would otherwise alias the same database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := Open(dsn, testConfig(), keys)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testKeyManager(t *testing.T) *integrity.KeyManager {
	t.Helper()
	dir := t.TempDir()
	km := integrity.NewKeyManager(secretstore.NewFile(dir), filepath.Join(dir, "public_key.txt"))
	if err := km.Load(); err != nil {
		t.Fatalf("KeyManager.Load: %v", err)
	}
	return km
}

func TestBootstrapSeedsDefaults(t *testing.T) {
	store := openTestStore(t, nil)

	cats, err := store.GetCategories()
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("len(cats) = %d, want 2", len(cats))
	}

	rows, err := store.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("len(config rows) = %d, want 6", len(rows))
	}
}

func TestDrainAndAppendWithoutKeyLeavesHashNull(t *testing.T) {
	store := openTestStore(t, nil)
	now := time.Now().UTC()
	sess := &activity.FocusSession{
		Process: "code.exe", Title: "main.go", Start: now, End: now.Add(20 * time.Second),
		Keystrokes: 5,
	}
	store.DrainAndAppend([]*activity.FocusSession{sess}, nil)

	rows, total, err := store.QuerySessions(SessionQuery{From: now.Add(-time.Hour).Format(time.RFC3339)})
	if err != nil {
		t.Fatalf("QuerySessions: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("got %d/%d rows, want 1/1", len(rows), total)
	}
	if rows[0].Hash != "" {
		t.Fatalf("expected empty hash without a key manager, got %q", rows[0].Hash)
	}
}

func TestDrainAndAppendChainsHashes(t *testing.T) {
	km := testKeyManager(t)
	store := openTestStore(t, km)

	now := time.Now().UTC()
	s1 := &activity.FocusSession{Process: "a.exe", Title: "A", Start: now, End: now.Add(20 * time.Second)}
	s2 := &activity.FocusSession{Process: "b.exe", Title: "B", Start: now.Add(30 * time.Second), End: now.Add(50 * time.Second)}
	store.DrainAndAppend([]*activity.FocusSession{s1}, nil)
	store.DrainAndAppend([]*activity.FocusSession{s2}, nil)

	rows, _, err := store.QuerySessions(SessionQuery{From: now.Add(-time.Hour).Format(time.RFC3339)})
	if err != nil {
		t.Fatalf("QuerySessions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Hash == "" || rows[1].Hash == "" {
		t.Fatalf("expected both sessions to be hashed")
	}
	if rows[1].PrevHash != rows[0].Hash {
		t.Fatalf("rows[1].PrevHash = %q, want %q", rows[1].PrevHash, rows[0].Hash)
	}
}

func TestComputeDailyIntegrity(t *testing.T) {
	km := testKeyManager(t)
	store := openTestStore(t, km)

	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	s1 := &activity.FocusSession{Process: "a.exe", Title: "A", Start: now, End: now.Add(20 * time.Second)}
	s2 := &activity.FocusSession{Process: "b.exe", Title: "B", Start: now.Add(30 * time.Second), End: now.Add(50 * time.Second)}
	store.DrainAndAppend([]*activity.FocusSession{s1, s2}, nil)

	if err := store.ComputeDailyIntegrity(date); err != nil {
		t.Fatalf("ComputeDailyIntegrity: %v", err)
	}

	var root, sig string
	var count int
	row := store.db.QueryRow(`SELECT merkle_root, session_count, signature FROM daily_integrity WHERE date = ?`, date)
	if err := row.Scan(&root, &count, &sig); err != nil {
		t.Fatalf("scan daily_integrity: %v", err)
	}
	if count != 2 {
		t.Fatalf("session_count = %d, want 2", count)
	}
	if root == "" || sig == "" {
		t.Fatalf("expected non-empty root and signature")
	}
}

func TestGetStatsCountsToday(t *testing.T) {
	store := openTestStore(t, nil)
	now := time.Now().UTC()
	sess := &activity.FocusSession{Process: "a.exe", Title: "A", Start: now, End: now.Add(20 * time.Second), Keystrokes: 10, Clicks: 2}
	store.DrainAndAppend([]*activity.FocusSession{sess}, nil)

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.SessionCount != 1 || stats.Keystrokes != 10 || stats.Clicks != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetHourlyAggregatesByHour(t *testing.T) {
	store := openTestStore(t, nil)
	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	sess := &activity.FocusSession{Process: "a.exe", Title: "A", Start: now, End: now.Add(20 * time.Second), Keystrokes: 4}
	store.DrainAndAppend([]*activity.FocusSession{sess}, nil)

	buckets, err := store.GetHourly(date)
	if err != nil {
		t.Fatalf("GetHourly: %v", err)
	}
	if len(buckets) != 24 {
		t.Fatalf("len(buckets) = %d, want 24", len(buckets))
	}
	hour := now.Hour()
	if buckets[hour].Sessions != 1 || buckets[hour].Keystrokes != 4 {
		t.Fatalf("bucket[%d] = %+v, want Sessions=1 Keystrokes=4", hour, buckets[hour])
	}
}

func TestGetTimelineIncludesTopAppAndMedia(t *testing.T) {
	store := openTestStore(t, nil)
	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	s1 := &activity.FocusSession{Process: "a.exe", Title: "A", Start: now, End: now.Add(60 * time.Second), Keystrokes: 3}
	s2 := &activity.FocusSession{Process: "b.exe", Title: "B", Start: now.Add(70 * time.Second), End: now.Add(80 * time.Second)}
	media := &activity.MediaSession{Title: "Song", SourceApp: "spotify.exe", Start: now, End: now.Add(30 * time.Second)}
	store.DrainAndAppend([]*activity.FocusSession{s1, s2}, []*activity.MediaSession{media})

	days, err := store.GetTimeline(1)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("len(days) = %d, want 1", len(days))
	}
	if days[0].Date != date {
		t.Fatalf("Date = %q, want %q", days[0].Date, date)
	}
	if days[0].TopApp != "a.exe" {
		t.Fatalf("TopApp = %q, want a.exe", days[0].TopApp)
	}
	if days[0].MediaSeconds != 30 {
		t.Fatalf("MediaSeconds = %v, want 30", days[0].MediaSeconds)
	}
}

func TestResolveCategoryFallsBackToDefault(t *testing.T) {
	store := openTestStore(t, nil)
	id, err := store.GetAppCategory("code.exe")
	if err != nil {
		t.Fatalf("GetAppCategory: %v", err)
	}
	if id != 2 {
		t.Fatalf("GetAppCategory(code.exe) = %d, want 2", id)
	}

	id, err = store.GetAppCategory("unknown.exe")
	if err != nil {
		t.Fatalf("GetAppCategory: %v", err)
	}
	if id != defaultCategoryID {
		t.Fatalf("GetAppCategory(unknown.exe) = %d, want %d", id, defaultCategoryID)
	}
}
