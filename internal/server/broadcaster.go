package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ownmon/ownmon/internal/activity"
)

// ErrTooManyConnections is returned by AddClient when MaxConnections is
// reached.
var ErrTooManyConnections = errors.New("server: too many WebSocket connections")

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, 64)}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans session_change/media_update/initial_state frames out to
// connected WebSocket clients. Session-change events are throttled and
// coalesced to the latest value, the way the teacher's broadcaster
// coalesces delta updates, since a rapid run of focus changes only needs
// its final state reflected downstream.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	store *activity.Store

	filter *PrivacyFilter

	throttle       time.Duration
	flushMu        sync.Mutex
	flushTimer     *time.Timer
	pendingSession *activity.FocusSession
	pendingMedia   *activity.MediaSession

	snapshotTicker *time.Ticker
	stopSnapshot   chan struct{}

	now func() time.Time
}

// NewBroadcaster constructs a Broadcaster backed by store. snapshotInterval
// drives a periodic full initial_state re-push to every client, throttle
// bounds how often coalesced session/media changes are flushed.
func NewBroadcaster(store *activity.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:      make(map[*client]bool),
		maxConns:     maxConns,
		store:        store,
		filter:       &PrivacyFilter{},
		throttle:     throttle,
		stopSnapshot: make(chan struct{}),
		now:          time.Now,
	}
	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()
	return b
}

// SetPrivacyFilter configures the filter applied to all outgoing frames.
func (b *Broadcaster) SetPrivacyFilter(f *PrivacyFilter) {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
}

func (b *Broadcaster) privacyFilter() *PrivacyFilter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter
}

// AddClient registers conn and immediately sends it an initial_state frame.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		conn.Close()
		return nil, ErrTooManyConnections
	}
	c := newClient(conn)
	b.clients[c] = true
	b.mu.Unlock()

	b.sendTo(c, b.initialStateFrame())
	return c, nil
}

// RemoveClient unregisters and closes c.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CurrentMedia reports the in-progress media session, if any, so the query
// layer can report it alongside persisted history.
func (b *Broadcaster) CurrentMedia() *activity.MediaSession {
	return b.store.CurrentMedia()
}

// QueueSessionChange coalesces a session_change event, flushing after
// throttle elapses.
func (b *Broadcaster) QueueSessionChange(sess *activity.FocusSession) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.pendingSession = sess
	b.armFlushLocked()
}

// QueueMediaUpdate coalesces a media_update event, flushing after throttle
// elapses.
func (b *Broadcaster) QueueMediaUpdate(media *activity.MediaSession) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.pendingMedia = media
	b.armFlushLocked()
}

func (b *Broadcaster) armFlushLocked() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	sess := b.pendingSession
	media := b.pendingMedia
	b.pendingSession = nil
	b.pendingMedia = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if sess != nil {
		b.broadcast(Frame{Type: MsgSessionChange, Data: b.privacyFilter().ApplySession(sess), Timestamp: b.now().UTC().Format(time.RFC3339)})
	}
	if media != nil {
		b.broadcast(Frame{Type: MsgMediaUpdate, Data: media, Timestamp: b.now().UTC().Format(time.RFC3339)})
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stopSnapshot:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.initialStateFrame())
		}
	}
}

func (b *Broadcaster) initialStateFrame() Frame {
	filter := b.privacyFilter()

	history := b.store.History()
	recent := make([]any, 0, len(history))
	for _, h := range history {
		recent = append(recent, filter.ApplySession(h))
	}

	var current any
	if cur := b.store.CurrentSession(); cur != nil {
		current = filter.ApplySession(cur)
	}

	return Frame{
		Type: MsgInitialState,
		Data: InitialStatePayload{
			CurrentSession: current,
			CurrentMedia:   b.store.CurrentMedia(),
			RecentHistory:  recent,
		},
		Timestamp: b.now().UTC().Format(time.RFC3339),
	}
}

func (b *Broadcaster) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("server: broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("server: client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) sendTo(c *client, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("server: send marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Stop stops the snapshot ticker.
func (b *Broadcaster) Stop() {
	b.snapshotTicker.Stop()
	close(b.stopSnapshot)
}
