// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// eventHub fans storage events out to the listeners of one collection.
type eventHub struct {
	collection string

	mu        sync.RWMutex
	nextID    int
	listeners map[int]domain.EventListener
}

func newEventHub(collection string) *eventHub {
	return &eventHub{
		collection: collection,
		listeners:  make(map[int]domain.EventListener),
	}
}

func (h *eventHub) subscribe(listener domain.EventListener) func() {
	if listener == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = listener
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

func (h *eventHub) emit(ctx context.Context, typ domain.EventType, id string, data any) {
	h.mu.RLock()
	if len(h.listeners) == 0 {
		h.mu.RUnlock()
		return
	}
	listeners := make([]domain.EventListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	event := domain.StorageEvent{
		Type:       typ,
		Collection: h.collection,
		ID:         id,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
	for _, l := range listeners {
		h.deliver(ctx, l, event)
	}
}

func (h *eventHub) deliver(ctx context.Context, listener domain.EventListener, event domain.StorageEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "storage event listener panicked",
				"collection", event.Collection,
				"event_type", string(event.Type),
				"id", event.ID,
				"panic", r,
			)
		}
	}()
	listener(event)
}
