package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/editor"
)

const (
	RealtimeEventDocumentChanged = "document-change"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "idcards-api"
	realtimeHeartbeatInterval    = 25 * time.Second
)

// RealtimeMessage announces a change to one editor session.
type RealtimeMessage struct {
	SessionID string
	EventType string
	Change    editor.Change
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to the subscribers of a session.
// Slow subscribers drop messages instead of blocking publishers.
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

// Subscribe registers a stream for the session until ctx ends or cleanup runs.
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

// Subscribers reports how many streams follow the session.
func (d *RealtimeDispatcher) Subscribers(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[sessionID])
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
