package session

// DefaultDedupeWindow is how many recent event ids are remembered.
const DefaultDedupeWindow = 256

// dedupe remembers the last size event ids in arrival order.
type dedupe struct {
	ring []string
	pos  int
	seen map[string]struct{}
}

func newDedupe(size int) *dedupe {
	if size <= 0 {
		size = DefaultDedupeWindow
	}
	return &dedupe{
		ring: make([]string, size),
		seen: make(map[string]struct{}, size),
	}
}

// Add records id and reports whether it was new. Empty ids are always new.
func (d *dedupe) Add(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	if old := d.ring[d.pos]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.pos] = id
	d.seen[id] = struct{}{}
	d.pos = (d.pos + 1) % len(d.ring)
	return true
}
