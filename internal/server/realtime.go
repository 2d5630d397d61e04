package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventNoteChanged = "note-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "notes-api"
	defaultHeartbeatInterval = 25 * time.Second
)

// Note change actions carried on RealtimeMessage.
const (
	NoteActionCreated   = "created"
	NoteActionUpdated   = "updated"
	NoteActionTrashed   = "trashed"
	NoteActionRestored  = "restored"
	NoteActionPurged    = "purged"
	NoteActionPinned    = "pin-toggled"
	NoteActionArchived  = "archive-toggled"
	NoteActionFavourite = "favourite-toggled"
)

type RealtimeMessage struct {
	UserID    string
	EventType string
	Action    string
	NoteIDs   []string
	Timestamp time.Time
}

type realtimePayload struct {
	Action    string    `json:"action"`
	NoteIDs   []string  `json:"noteIds"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// RealtimeDispatcher fans note change events out to the owner's open streams.
// Slow subscribers miss events instead of blocking publishers.
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

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(userID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.UserID] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams userID has open.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

func (h *httpHandler) publishNoteChange(userID, action string, noteIDs ...string) {
	if h.realtime == nil || len(noteIDs) == 0 {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventNoteChanged,
		Action:    action,
		NoteIDs:   noteIDs,
		Timestamp: time.Now().UTC(),
	})
}

// handleNotesStream serves a server-sent event stream of the caller's note changes.
func (h *httpHandler) handleNotesStream(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	h.logger.Debug("realtime stream opened", zap.String("user_id", userID))
	c.SSEvent(realtimeEventHeartbeat, realtimePayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Action:    message.Action,
				NoteIDs:   message.NoteIDs,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{Source: realtimeSourceBackend, Timestamp: tick.UTC()})
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.String("user_id", userID))
}
