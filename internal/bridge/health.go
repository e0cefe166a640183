package bridge

import (
	"sync"
	"time"
)

// HealthTracker counts register exchange outcomes over a sliding window of
// the most recent operations and remembers the last success.
type HealthTracker struct {
	mu          sync.RWMutex
	window      []bool
	next        int
	filled      int
	lastSuccess time.Time
	lastError   time.Time
}

const healthWindow = 50

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{window: make([]bool, healthWindow)}
}

// Record stores the outcome of one exchange
func (h *HealthTracker) Record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.window[h.next] = err == nil
	h.next = (h.next + 1) % len(h.window)
	if h.filled < len(h.window) {
		h.filled++
	}
	if err == nil {
		h.lastSuccess = time.Now()
	} else {
		h.lastError = time.Now()
	}
}

// Counts returns successes and errors within the window
func (h *HealthTracker) Counts() (success, failed int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := 0; i < h.filled; i++ {
		if h.window[i] {
			success++
		} else {
			failed++
		}
	}
	return success, failed
}

func (h *HealthTracker) LastSuccess() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSuccess
}

func (h *HealthTracker) LastError() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastError
}
