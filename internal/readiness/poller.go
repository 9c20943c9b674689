// Package readiness polls the backend until a video's derived data
// (transcript, metadata, summary) is fully prepared, on a fixed interval with
// a hard wall-clock budget.
package readiness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/logging"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultBudget   = 60 * time.Second
)

type Status int

const (
	StatusIdle Status = iota
	StatusPolling
	StatusReady
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPolling:
		return "polling"
	case StatusReady:
		return "ready"
	case StatusTimedOut:
		return "timed out"
	default:
		return "idle"
	}
}

// StatusClient is the slice of the backend client the poller needs.
type StatusClient interface {
	VideoStatus(ctx context.Context, videoID string) (api.Readiness, error)
}

// Poller drives the readiness state machine for one video reference. A new
// video reference gets a new Poller; there is no restart.
type Poller struct {
	client   StatusClient
	interval time.Duration
	budget   time.Duration

	mu       sync.Mutex
	status   Status
	snapshot api.Readiness
}

func NewPoller(client StatusClient, interval, budget time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Poller{client: client, interval: interval, budget: budget}
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Snapshot returns the last readiness report received.
func (p *Poller) Snapshot() api.Readiness {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Run polls until the video is ready or the budget elapses, and returns the
// terminal status. An immediate probe precedes the interval loop. Probe
// failures skip the tick: they never count toward the timeout, which is
// wall-clock from the first poll. Cancelling the context resets to idle.
func (p *Poller) Run(ctx context.Context, videoID string) Status {
	p.setStatus(StatusPolling)

	deadline := time.NewTimer(p.budget)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.probe(ctx, videoID) {
		return p.finish(StatusReady)
	}
	for {
		select {
		case <-ctx.Done():
			return p.finish(StatusIdle)
		case <-deadline.C:
			return p.finish(StatusTimedOut)
		case <-ticker.C:
			if p.probe(ctx, videoID) {
				return p.finish(StatusReady)
			}
		}
	}
}

func (p *Poller) probe(ctx context.Context, videoID string) bool {
	r, err := p.client.VideoStatus(ctx, videoID)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("readiness probe failed", "video_id", videoID, logging.Err(err))
		}
		return false
	}
	p.mu.Lock()
	p.snapshot = r
	p.mu.Unlock()
	return r.Complete()
}

func (p *Poller) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *Poller) finish(s Status) Status {
	p.setStatus(s)
	return s
}
