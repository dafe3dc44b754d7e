package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// HandlerFunc consumes one raw event payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// SyncDispatcher is an in-process Publisher that invokes subscribers
// immediately. Tests use it to drive the consistency handlers through the
// same payload encoding the queue uses.
type SyncDispatcher struct {
	handlers map[string][]HandlerFunc
}

func NewSyncDispatcher() *SyncDispatcher {
	return &SyncDispatcher{handlers: make(map[string][]HandlerFunc)}
}

func (d *SyncDispatcher) Subscribe(event string, h HandlerFunc) {
	d.handlers[event] = append(d.handlers[event], h)
}

func (d *SyncDispatcher) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	for _, h := range d.handlers[event] {
		if err := h(ctx, data); err != nil {
			return fmt.Errorf("handle %s: %w", event, err)
		}
	}
	return nil
}

// NopPublisher drops events. Used where emission failures must never block
// the workflow and no consumer is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, event string, _ any) error {
	slog.Debug("dropping event, no publisher configured", "event", event)
	return nil
}
