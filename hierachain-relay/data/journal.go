package data

import (
	"sync"
)

// Resolution is one journal entry: how a longest chain request was answered.
type Resolution struct {
	CorrelationID string  `json:"correlation_id"`
	Requester     string  `json:"requester"`
	Replies       int     `json:"replies"`
	WinnerLength  int     `json:"winner_length"`
	Outcome       string  `json:"outcome"`
	LatencyMs     float64 `json:"latency_ms"`
	ResolvedAt    float64 `json:"resolved_at"`
}

// Journal keeps the most recent resolutions in a fixed size ring.
type Journal struct {
	entries []Resolution
	next    int
	full    bool
	mu      sync.Mutex
}

// NewJournal creates a journal holding at most size entries.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = 1
	}
	return &Journal{
		entries: make([]Resolution, size),
	}
}

// Append adds an entry, overwriting the oldest one when full.
func (j *Journal) Append(r Resolution) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries[j.next] = r
	j.next++
	if j.next == len(j.entries) {
		j.next = 0
		j.full = true
	}
}

// Snapshot returns the retained entries, oldest first.
func (j *Journal) Snapshot() []Resolution {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.full {
		out := make([]Resolution, j.next)
		copy(out, j.entries[:j.next])
		return out
	}

	out := make([]Resolution, 0, len(j.entries))
	out = append(out, j.entries[j.next:]...)
	out = append(out, j.entries[:j.next]...)
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.full {
		return len(j.entries)
	}
	return j.next
}
