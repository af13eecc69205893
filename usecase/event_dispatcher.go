package usecase

import (
	"context"
	"sync"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

const defaultEventBuffer = 256

// EventDispatcher hands publish events to sinks without blocking the caller.
// Every sink gets its own queue and goroutine, so a slow broker only delays
// its own deliveries. Events that do not fit in a full queue are dropped.
type EventDispatcher struct {
	mu      sync.RWMutex
	closed  bool
	sinks   []repository.IPublishEventSink
	queues  []chan model.PublishEvent
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEventDispatcher(sinks []repository.IPublishEventSink, buffer int, timeout time.Duration) *EventDispatcher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &EventDispatcher{timeout: timeout}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		q := make(chan model.PublishEvent, buffer)
		d.sinks = append(d.sinks, s)
		d.queues = append(d.queues, q)
		d.wg.Add(1)
		go d.deliver(s, q)
	}
	return d
}

// Dispatch never blocks. It is a no-op after Close.
func (d *EventDispatcher) Dispatch(evt model.PublishEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, q := range d.queues {
		select {
		case q <- evt:
		default:
			logger.GetLogger().WithFields(map[string]interface{}{"runId": evt.RunID, "type": evt.Type}).Warn("Publish event queue full, event dropped")
		}
	}
}

func (d *EventDispatcher) deliver(s repository.IPublishEventSink, q <-chan model.PublishEvent) {
	defer d.wg.Done()
	for evt := range q {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := s.Send(ctx, evt); err != nil {
			logger.GetLogger().WithFields(map[string]interface{}{"runId": evt.RunID, "type": evt.Type}).WithError(err).Warn("Publish event not delivered")
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued ones were attempted.
func (d *EventDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
