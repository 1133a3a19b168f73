// Package task drives asynchronous generation jobs to completion by polling
// the backend task-status endpoint until a terminal state.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cvdeck/cvdeck/internal/model"
)

// PollInterval is the fixed delay between status probes.
const PollInterval = 2 * time.Second

// StatusFetcher fetches one task's current status.
type StatusFetcher interface {
	TaskStatus(ctx context.Context, taskID string) (*model.Task, error)
}

// Handle is one cancellable polling loop.
type Handle struct {
	TaskID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the loop. Safe to call more than once and after completion.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the loop has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poller runs at most one polling loop at a time. Starting a new poll stops
// the previous one first, so an abandoned task never leaves an orphaned timer.
type Poller struct {
	fetch    StatusFetcher
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewPoller creates a poller with the fixed production interval.
func NewPoller(fetch StatusFetcher, logger *slog.Logger) *Poller {
	return &Poller{fetch: fetch, interval: PollInterval, logger: logger}
}

// Start begins polling taskID. Exactly one of onDone/onFail fires, exactly
// once, unless the poll is cancelled first. The returned handle lets the
// consumer stop the loop on teardown.
func (p *Poller) Start(ctx context.Context, taskID string, onDone func(result string), onFail func(err error)) *Handle {
	pollCtx, cancel := context.WithCancel(ctx)
	h := &Handle{TaskID: taskID, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.active != nil {
		p.active.Cancel()
		<-p.active.done
	}
	p.active = h
	p.mu.Unlock()

	go p.loop(pollCtx, h, onDone, onFail)
	return h
}

// Stop cancels the active poll, if any, and waits for it to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.active
	p.mu.Unlock()
	if h != nil {
		h.Cancel()
		<-h.done
	}
}

// Active reports whether a polling loop is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return false
	}
	select {
	case <-p.active.done:
		return false
	default:
		return true
	}
}

func (p *Poller) loop(ctx context.Context, h *Handle, onDone func(string), onFail func(error)) {
	// done must close before taking the mutex: Start waits on it while
	// holding the lock when replacing the active loop.
	defer func() {
		close(h.done)
		p.mu.Lock()
		if p.active == h {
			p.active = nil
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t, err := p.fetch.TaskStatus(ctx, h.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient probe failure; the task may still finish.
			p.logger.Warn("task status probe failed",
				slog.String("task", h.TaskID),
				slog.String("error", err.Error()))
			continue
		}

		switch t.Status {
		case model.TaskCompleted:
			onDone(t.Result)
			return
		case model.TaskFailed:
			onFail(&model.TaskError{TaskID: h.TaskID, Message: t.Error})
			return
		default:
			// processing: keep polling
		}
	}
}
