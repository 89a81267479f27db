package pipeline

import (
	"context"

	"github.com/Sumatoshi-tech/analysisd/pkg/pending"
)

// completer removes processed actions from the registry.
// It is the only stage that removes registry entries.
type completer struct {
	registry       *pending.Registry
	requestPersist func()
	stats          *counters
}

// run drains in until it is closed. Batches already processed are completed
// even when ctx is done; the cancellation cause is returned afterwards.
func (c *completer) run(ctx context.Context, in *mailbox[batch]) error {
	for {
		b, ok, _ := in.receive(context.WithoutCancel(ctx))
		if !ok {
			break
		}

		c.complete(b)
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	return nil
}

func (c *completer) complete(b batch) {
	for _, act := range b.actions {
		c.registry.Remove(act.ID)
		act.Aspects = nil
	}

	c.stats.completed.Add(int64(len(b.actions)))
	c.requestPersist()
}
