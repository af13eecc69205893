package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"social-publisher/domain/model"

	"github.com/gin-gonic/gin"
)

const subscriberBuffer = 16

// Hub maintains per-user subscribers listening for publish events.
type Hub struct {
	mu        sync.RWMutex
	users     map[string]map[chan model.PublishEvent]struct{}
	heartbeat time.Duration
}

func NewPublishHub(heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Hub{users: make(map[string]map[chan model.PublishEvent]struct{}), heartbeat: heartbeat}
}

// Serve registers an SSE stream for the authenticated user (user_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := h.Subscribe(userID)
	defer h.Unsubscribe(userID, ch)

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			_, _ = c.Writer.Write([]byte(":ping\n\n"))
			c.Writer.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(evt.Type, evt)
			c.Writer.Flush()
		}
	}
}

// Subscribe returns a buffered channel receiving the user's events.
func (h *Hub) Subscribe(userID string) chan model.PublishEvent {
	ch := make(chan model.PublishEvent, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[chan model.PublishEvent]struct{})
	}
	h.users[userID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(userID string, ch chan model.PublishEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.users[userID]; subs != nil {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.users, userID)
		}
	}
}

// Subscribers counts open streams of a user.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Send delivers the event to every stream of its user. Slow subscribers miss
// events instead of blocking the publisher.
func (h *Hub) Send(_ context.Context, evt model.PublishEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.users[evt.UserID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}
