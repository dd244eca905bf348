// Package server is the localhost HTTP/WebSocket query layer described in
// §6: read-only endpoints over the persistence layer plus a live event
// stream fed by the poller.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/storage"
)

// Server wires the query surface to the persistence layer and the live
// broadcaster.
type Server struct {
	cfg         *config.Config
	persistence *storage.Store
	broadcaster *Broadcaster

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

// New constructs a Server. cfg, persistence, and broadcaster must be
// non-nil.
func New(cfg *config.Config, persistence *storage.Store, broadcaster *Broadcaster) *Server {
	s := &Server{
		cfg:            cfg,
		persistence:    persistence,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// SetupRoutes registers every route named in §6 onto mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/media", s.handleMedia)
	mux.HandleFunc("/api/hourly", s.handleHourly)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/categories", s.handleCategories)
	mux.HandleFunc("/api/app-category", s.handleAppCategory)
	mux.HandleFunc("/api/config", s.handleConfig)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: ws upgrade error: %v", err)
		return
	}

	log.Printf("server: client connected: %s", r.RemoteAddr)
	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		return
	}

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("server: client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	stats, err := s.persistence.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	rows, total, err := s.persistence.QuerySessions(storage.SessionQuery{
		Date:       q.Get("date"),
		From:       q.Get("from"),
		To:         q.Get("to"),
		AppPattern: q.Get("app"),
		Category:   atoiDefault(q.Get("category"), 0),
		Limit:      atoiDefault(q.Get("limit"), 0),
		Offset:     atoiDefault(q.Get("offset"), 0),
		OrderDesc:  q.Get("order") == "desc",
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Rows  []storage.SessionRow `json:"rows"`
		Total int                  `json:"total"`
	}{rows, total})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	rows, total, err := s.persistence.QueryMedia(storage.MediaQuery{
		Date:             q.Get("date"),
		From:             q.Get("from"),
		To:               q.Get("to"),
		ArtistPattern:    q.Get("artist"),
		SourceAppPattern: q.Get("sourceApp"),
		Limit:            atoiDefault(q.Get("limit"), 0),
		Offset:           atoiDefault(q.Get("offset"), 0),
		OrderDesc:        q.Get("order") == "desc",
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	current := s.broadcaster.CurrentMedia()

	writeJSON(w, struct {
		Current *activity.MediaSession `json:"current"`
		History []storage.MediaRow     `json:"history"`
		Total   int                    `json:"total"`
	}{current, rows, total})
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	buckets, err := s.persistence.GetHourly(date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, buckets)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	days := atoiDefault(r.URL.Query().Get("days"), 7)
	timeline, err := s.persistence.GetTimeline(days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, timeline)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	cats, err := s.persistence.GetCategories()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, cats)
}

func (s *Server) handleAppCategory(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	id, err := s.persistence.GetAppCategory(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Process    string `json:"process"`
		CategoryID int    `json:"categoryId"`
	}{name, id})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rows, err := s.persistence.GetConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	return strings.HasPrefix(host, "localhost:") || host == "localhost" ||
		strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" ||
		strings.HasPrefix(host, "[::1]:") || host == "::1"
}

// ListenAndServe starts the HTTP server bound to cfg.Server.Host:Port.
func ListenAndServe(cfg *config.Config, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("server: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
