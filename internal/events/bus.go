// Package events fans out file record changes to in-process listeners and external publishers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"filescdn/internal/model"
)

// Event names a record change.
type Event string

const (
	AfterUpload Event = "afterUpload"
	AfterRemove Event = "afterRemove"
)

// Message is the payload delivered to publishers.
type Message struct {
	Event      Event            `json:"event"`
	Collection string           `json:"collection"`
	File       model.FileRecord `json:"file"`
	At         time.Time        `json:"at"`
}

// Listener is called synchronously for every emitted event it subscribed to.
type Listener func(ctx context.Context, rec model.FileRecord)

// Publisher forwards messages outside the process.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Bus dispatches events. Publisher failures are logged, never returned to the emitter.
type Bus struct {
	log *slog.Logger

	mu         sync.RWMutex
	listeners  map[Event][]Listener
	publishers []Publisher
}

func NewBus(log *slog.Logger, pubs ...Publisher) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:        log.With("component", "events"),
		listeners:  make(map[Event][]Listener),
		publishers: pubs,
	}
}

// AddListener subscribes fn to ev.
func (b *Bus) AddListener(ev Event, fn Listener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[ev] = append(b.listeners[ev], fn)
}

// Emit runs the listeners of ev and then hands the record to every publisher.
func (b *Bus) Emit(ctx context.Context, ev Event, rec model.FileRecord) {
	b.mu.RLock()
	ls := append([]Listener(nil), b.listeners[ev]...)
	pubs := b.publishers
	b.mu.RUnlock()

	for _, fn := range ls {
		b.safeCall(ctx, ev, rec, fn)
	}

	msg := Message{Event: ev, Collection: rec.Collection, File: rec, At: time.Now().UTC()}
	for _, p := range pubs {
		if err := p.Publish(ctx, msg); err != nil {
			b.log.WarnContext(ctx, "event_publish_failed",
				"event", string(ev),
				"file_id", rec.ID,
				"error", err.Error(),
			)
		}
	}
}

func (b *Bus) safeCall(ctx context.Context, ev Event, rec model.FileRecord, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			b.log.ErrorContext(ctx, "event_listener_panic",
				"event", string(ev),
				"file_id", rec.ID,
				"panic", r,
			)
		}
	}()
	fn(ctx, rec)
}
