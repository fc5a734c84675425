package hetcore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
)

// watchBuffer is how many finished runs a slow watcher may lag behind
// before runs are dropped for it.
const watchBuffer = 10

// watchers fans finished runs out to every subscriber.
type watchers struct {
	mu     sync.RWMutex
	subs   map[chan *domain.RunRecord]struct{}
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

func newWatchers(logger *slog.Logger) *watchers {
	return &watchers{
		subs:   make(map[chan *domain.RunRecord]struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// subscribe registers a channel that is closed when ctx ends or the engine
// shuts down.
func (w *watchers) subscribe(ctx context.Context) <-chan *domain.RunRecord {
	ch := make(chan *domain.RunRecord, watchBuffer)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch
	}
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.unsubscribe(ch)
		case <-w.done:
		}
	}()
	return ch
}

func (w *watchers) unsubscribe(ch chan *domain.RunRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
}

func (w *watchers) broadcast(run *domain.RunRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for ch := range w.subs {
		select {
		case ch <- run:
		default:
			w.logger.Warn("Watcher is lagging, dropping run", "run", run.ID)
		}
	}
}

func (w *watchers) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
}
