package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventLibraryChanged  = "library-change"
	RealtimeEventDocumentPublish = "document-published"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "docvault-backend"
	realtimeHeartbeatInterval    = 25 * time.Second
)

// RealtimeMessage announces documents whose library state changed for one session.
type RealtimeMessage struct {
	SessionID   string
	EventType   string
	DocumentIDs []string
	Timestamp   time.Time
}

// RealtimeDispatcher fans messages out to the open streams of each session.
// Sessions of the same account keep separate libraries, so they never share events.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, sessionID string) (<-chan RealtimeMessage, func()) {
	if sessionID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(sessionID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(sessionID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message without blocking; a full subscriber buffer drops it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.SessionID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.SessionID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(sessionID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[sessionID]; !ok {
		d.subscribers[sessionID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[sessionID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(sessionID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[sessionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, sessionID)
		}
	}
	d.mu.Unlock()
}

type realtimeEventPayload struct {
	DocumentIDs []string `json:"documentIds"`
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
}

func (h *httpHandler) handleLibraryStream(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	sessionID := current.ID

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stream, cleanup := h.realtime.Subscribe(ctx, sessionID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	h.logger.Debug("library stream opened", zap.String("session_id", sessionID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				DocumentIDs: message.DocumentIDs,
				Timestamp:   message.Timestamp.UTC().Format(time.RFC3339),
				Source:      realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
	h.logger.Debug("library stream closed", zap.String("session_id", sessionID))
}

func (h *httpHandler) publishLibraryChange(sessionID, eventType string, documentIDs ...string) {
	if h.realtime == nil || len(documentIDs) == 0 {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		SessionID:   sessionID,
		EventType:   eventType,
		DocumentIDs: documentIDs,
		Timestamp:   time.Now().UTC(),
	})
}
