package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
)

// batch is a group of actions handed from stage to stage.
type batch struct {
	actions []*action.Action
	trigger Trigger
}

// batcher groups submitted actions into batches of at most size actions.
// A partial batch is flushed once timeout passes without a submission.
type batcher struct {
	size    int
	timeout time.Duration

	mu       sync.Mutex
	buf      []*action.Action
	closed   bool
	deadline time.Time
	timer    *time.Timer

	formed *mailbox[batch]
	out    chan batch
}

func newBatcher(size int, timeout time.Duration, capacity int) *batcher {
	b := &batcher{
		size:    size,
		timeout: timeout,
		formed:  newMailbox[batch](),
		out:     make(chan batch, capacity),
	}

	b.timer = time.AfterFunc(timeout, b.onTimeout)
	b.timer.Stop()

	return b
}

// Submit buffers act and never blocks. It reports false once the batcher
// stopped accepting.
func (b *batcher) Submit(act *action.Action) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.buf = append(b.buf, act)

	if len(b.buf) >= b.size {
		b.cutLocked(TriggerSize)
	}

	b.deadline = time.Now().Add(b.timeout)
	b.timer.Reset(b.timeout)

	return true
}

// Complete stops accepting and flushes the remainder.
func (b *batcher) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.timer.Stop()

	if len(b.buf) > 0 {
		b.cutLocked(TriggerDrain)
	}

	b.formed.close()
}

// Buffered returns the number of actions not yet part of a batch.
func (b *batcher) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.buf)
}

func (b *batcher) onTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A submission raced the fire and moved the deadline; the timer is re-armed.
	if b.closed || time.Now().Before(b.deadline) {
		return
	}

	if len(b.buf) > 0 {
		b.cutLocked(TriggerTimeout)
	}
}

// cutLocked must be called with mu held.
func (b *batcher) cutLocked(trigger Trigger) {
	b.formed.push(batch{actions: b.buf, trigger: trigger})
	b.buf = nil
}

// run forwards formed batches in order until the batcher is completed and
// drained, or ctx is done. It closes the output channel on return.
func (b *batcher) run(ctx context.Context) error {
	defer close(b.out)
	defer b.stop()

	for {
		next, ok, err := b.formed.receive(ctx)
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		select {
		case b.out <- next:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// stop rejects further submissions. Buffered actions are abandoned.
func (b *batcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.timer.Stop()
	b.formed.close()
}
