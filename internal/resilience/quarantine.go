package resilience

import (
	"sort"
	"sync"
	"time"
)

// QuarantineEntry describes a key that kept failing and was set aside.
type QuarantineEntry struct {
	Key       string    `json:"key"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Quarantine counts attempts per key and sets a key aside once it reaches
// the attempt cap. A cap of 0 disables quarantining.
type Quarantine struct {
	mu       sync.Mutex
	max      int
	clock    Clock
	attempts map[string]*QuarantineEntry
}

// NewQuarantine creates a Quarantine allowing maxAttempts per key.
func NewQuarantine(maxAttempts int, clock Clock) *Quarantine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Quarantine{
		max:      maxAttempts,
		clock:    clock,
		attempts: make(map[string]*QuarantineEntry),
	}
}

// Attempt records one more attempt for key and reports whether the key is
// now quarantined.
func (q *Quarantine) Attempt(key, reason string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	e, ok := q.attempts[key]
	if !ok {
		e = &QuarantineEntry{Key: key, FirstSeen: now}
		q.attempts[key] = e
	}
	e.Attempts++
	e.LastSeen = now
	if reason != "" {
		e.Reason = reason
	}
	return q.max > 0 && e.Attempts >= q.max
}

// Quarantined reports whether key has reached the attempt cap.
func (q *Quarantine) Quarantined(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.attempts[key]
	return ok && q.max > 0 && e.Attempts >= q.max
}

// Keys returns the quarantined keys in sorted order.
func (q *Quarantine) Keys() []string {
	entries := q.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a snapshot of the quarantined entries sorted by key.
func (q *Quarantine) Entries() []QuarantineEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.max <= 0 {
		return nil
	}
	var out []QuarantineEntry
	for _, e := range q.attempts {
		if e.Attempts >= q.max {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
