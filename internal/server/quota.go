package server

import (
	"sync"
	"time"
)

const quotaWindow = 24 * time.Hour

// quotaLedger tracks chat turns per caller over a rolling daily window.
// The window opens on the caller's first turn and resets when it elapses.
type quotaLedger struct {
	guestLimit int
	userLimit  int

	mu      sync.Mutex
	windows map[string]*quotaWindowState
}

type quotaWindowState struct {
	used    int
	resetAt time.Time
}

func newQuotaLedger(guestLimit, userLimit int) *quotaLedger {
	return &quotaLedger{
		guestLimit: guestLimit,
		userLimit:  userLimit,
		windows:    make(map[string]*quotaWindowState),
	}
}

// consume spends one turn for the caller. When the quota is exhausted it
// reports false and how long until the window resets.
func (q *quotaLedger) consume(callerID string, isUser bool) (bool, time.Duration) {
	limit := q.guestLimit
	if isUser {
		limit = q.userLimit
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	w, ok := q.windows[callerID]
	if !ok || now.After(w.resetAt) {
		w = &quotaWindowState{resetAt: now.Add(quotaWindow)}
		q.windows[callerID] = w
	}
	if w.used >= limit {
		return false, time.Until(w.resetAt)
	}
	w.used++
	return true, 0
}
