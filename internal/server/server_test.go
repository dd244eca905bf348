package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/storage"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.MaxConnections = 10
	cfg.Server.BroadcastThrottle = 10 * time.Millisecond
	cfg.Server.SnapshotInterval = time.Hour
	cfg.Monitor.MinSessionDuration = 10 * time.Second
	cfg.Monitor.AfkThreshold = 300 * time.Second
	cfg.Categories = []config.CategoryConfig{
		{ID: 1, Name: "Other", Color: "#9e9e9e", Icon: "?"},
	}
	return cfg
}

func newTestServer(t *testing.T) (*Server, *activity.Store, *storage.Store) {
	t.Helper()
	cfg := testConfig()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	persistence, err := storage.Open(dsn, cfg, nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { persistence.Close() })

	astore := activity.NewStore(activity.Config{
		AfkThreshold:       cfg.Monitor.AfkThreshold,
		MinSessionDuration: cfg.Monitor.MinSessionDuration,
		MaxSessions:        100,
	}, nil)

	b := NewBroadcaster(astore, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections)
	t.Cleanup(b.Stop)

	srv := New(cfg, persistence, b)
	return srv, astore, persistence
}

func TestHandleStatsReturnsJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var stats storage.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHandleSessionsAppliesQueryFilters(t *testing.T) {
	srv, _, persistence := newTestServer(t)
	now := time.Now().UTC()
	persistence.DrainAndAppend([]*activity.FocusSession{
		{Process: "code.exe", Title: "main.go", Start: now, End: now.Add(20 * time.Second)},
	}, nil)

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions?from="+url.QueryEscape(now.Add(-time.Hour).Format(time.RFC3339)), nil)
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload struct {
		Rows  []storage.SessionRow `json:"rows"`
		Total int                  `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 1 || len(payload.Rows) != 1 {
		t.Fatalf("got %d/%d rows, want 1/1", len(payload.Rows), payload.Total)
	}
}

func TestHandleMediaReportsCurrentAndHistory(t *testing.T) {
	srv, astore, persistence := newTestServer(t)
	now := time.Now().UTC()
	persistence.DrainAndAppend(nil, []*activity.MediaSession{
		{Title: "Old Song", Artist: "Old Artist", SourceApp: "spotify.exe", Start: now.Add(-time.Hour), End: now.Add(-time.Hour + 30*time.Second)},
	})
	astore.UpdateMedia(activity.MediaInfo{Title: "Now Playing", Artist: "Artist", SourceApp: "spotify.exe", Status: activity.Playing})

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/media?from="+url.QueryEscape(now.Add(-2*time.Hour).Format(time.RFC3339)), nil)
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload struct {
		Current *activity.MediaSession `json:"current"`
		History []storage.MediaRow     `json:"history"`
		Total   int                    `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 1 || len(payload.History) != 1 {
		t.Fatalf("got %d/%d history rows, want 1/1", len(payload.History), payload.Total)
	}
	if payload.Current == nil || payload.Current.Title != "Now Playing" {
		t.Fatalf("Current = %+v, want in-progress \"Now Playing\" session", payload.Current)
	}
}

func TestHandleCategoriesReturnsSeeded(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	mux.ServeHTTP(rr, req)

	var cats []storage.Category
	if err := json.Unmarshal(rr.Body.Bytes(), &cats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) != 1 {
		t.Fatalf("len(cats) = %d, want 1", len(cats))
	}
}

func TestHandleHourlyRequiresDate(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hourly", nil)
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAuthorizeRejectsWithoutToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.authToken = "secret"

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	if srv.authorize(req) {
		t.Fatalf("expected unauthorized without a token")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats?token=secret", nil)
	if !srv.authorize(req) {
		t.Fatalf("expected authorized with matching query token")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if !srv.authorize(req) {
		t.Fatalf("expected authorized with matching bearer token")
	}
}

func TestCheckOriginAllowsLocalhostByDefault(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	if !srv.checkOrigin(req) {
		t.Fatalf("expected localhost origin to be allowed by default")
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	if srv.checkOrigin(req) {
		t.Fatalf("expected non-local origin to be rejected by default")
	}
}

func TestCheckOriginRespectsAllowList(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.allowedOrigins["https://dash.example.com"] = true
	srv.allowedHosts["dash.example.com"] = true

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	if !srv.checkOrigin(req) {
		t.Fatalf("expected allow-listed origin to pass")
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	if srv.checkOrigin(req) {
		t.Fatalf("expected localhost to be rejected once an explicit allow list is configured")
	}
}

func TestWebSocketUpgradeDeliversInitialState(t *testing.T) {
	srv, astore, _ := newTestServer(t)
	astore.SwitchSession(1, 100, "code.exe", "main.go")

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Type != MsgInitialState {
		t.Fatalf("frame.Type = %q, want %q", frame.Type, MsgInitialState)
	}
}
