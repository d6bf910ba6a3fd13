package audit

import (
	"context"
	"time"
)

// StorePublisher appends events straight to a store. It is append-only and
// uses the storage layer for persistence so tests can swap sinks easily.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// AsyncPublisher hands events to a background worker over a channel. Emit
// never blocks the request path; when the inbox is full the event is dropped
// and the caller's error return reports it.
type AsyncPublisher struct {
	inbox chan<- Event
}

func NewAsyncPublisher(inbox chan<- Event) *AsyncPublisher {
	return &AsyncPublisher{inbox: inbox}
}

func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrInboxFull
	}
}
