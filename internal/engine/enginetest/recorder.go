package enginetest

import (
	"context"
	"encoding/json"
	"sync"

	"tourdesk/internal/domain"
	"tourdesk/internal/events"
)

// Recorder keeps appended events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (r *Recorder) Append(_ context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) (domain.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	evt := domain.Event{
		ID:         int64(len(r.Events) + 1),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	r.Events = append(r.Events, evt)
	return evt, nil
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
