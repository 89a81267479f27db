package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

// sidecar writes the pending-action snapshot to the settings store.
// At most one write executes and at most one more is queued; requests
// beyond that are dropped since the queued write reads the latest state.
type sidecar struct {
	ctx      context.Context
	store    SettingsStore
	snapshot func() []action.Record

	mu       sync.RWMutex
	closed   bool
	requests chan struct{}
	done     chan struct{}

	stats   *counters
	logger  *slog.Logger
	metrics *observability.PipelineMetrics
}

func newSidecar(ctx context.Context, store SettingsStore, snapshot func() []action.Record) *sidecar {
	return &sidecar{
		ctx:      ctx,
		store:    store,
		snapshot: snapshot,
		requests: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *sidecar) start() {
	go func() {
		defer close(s.done)

		for range s.requests {
			s.write()
		}
	}()
}

// Request schedules a write and never blocks. It reports false when the
// request was dropped or the sidecar is closed.
func (s *sidecar) Request() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.requests <- struct{}{}:
		return true
	default:
		s.stats.coalesced.Add(1)
		s.metrics.RecordCoalesced(s.ctx)

		return false
	}
}

// Close stops accepting requests. Queued work still runs.
func (s *sidecar) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.requests)
}

// Wait blocks until the executing and queued writes are done.
func (s *sidecar) Wait() {
	<-s.done
}

func (s *sidecar) write() {
	start := time.Now()
	records := s.snapshot()

	err := s.store.Save(s.ctx, settings.PendingActions{Actions: records})
	if err != nil {
		s.stats.writeFailures.Add(1)
		s.metrics.RecordPersist(s.ctx, observability.StatusFailed, time.Since(start))
		s.logger.ErrorContext(s.ctx, "persist pending actions",
			slog.Int("pending", len(records)),
			slog.Any("error", err))

		return
	}

	s.stats.writes.Add(1)
	s.metrics.RecordPersist(s.ctx, observability.StatusOK, time.Since(start))
	s.logger.DebugContext(s.ctx, "pending actions persisted", slog.Int("pending", len(records)))
}
