package httpapi

import (
	"sync"

	"github.com/giuliaserra/aria/internal/workflow"
)

// eventHub fans stage events out to per-session websocket subscribers. A slow
// subscriber never blocks a stage: full channels drop.
type eventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan workflow.StageEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[chan workflow.StageEvent]struct{})}
}

func (h *eventHub) subscribe(sessionID string) chan workflow.StageEvent {
	ch := make(chan workflow.StageEvent, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan workflow.StageEvent]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (h *eventHub) unsubscribe(sessionID string, ch chan workflow.StageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

func (h *eventHub) publish(ev workflow.StageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
