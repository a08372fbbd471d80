package relay

import "sync"

// hub fans processed alerts out to live-feed subscribers. A subscriber that
// falls behind loses alerts rather than blocking the pipeline.
type hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Alert
	nextID int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Alert)}
}

func (h *hub) subscribe(buffer int) (int, <-chan Alert) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Alert, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *hub) publish(a Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
