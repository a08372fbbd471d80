package relay

import "sync"

// recentAlerts keeps the newest max alerts, oldest first.
type recentAlerts struct {
	mu    sync.Mutex
	max   int
	items []Alert
}

func newRecentAlerts(max int) *recentAlerts {
	if max < 0 {
		max = 0
	}
	return &recentAlerts{max: max, items: make([]Alert, 0, max)}
}

func (r *recentAlerts) add(a Alert) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max == 0 {
		return
	}
	if len(r.items) < r.max {
		r.items = append(r.items, a)
		return
	}
	copy(r.items, r.items[1:])
	r.items[len(r.items)-1] = a
}

func (r *recentAlerts) snapshot() []Alert {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Alert, 0, len(r.items))
	out = append(out, r.items...)
	return out
}
