package pipeline

import "sync/atomic"

// Stats is a point-in-time view of pipeline counters. It mirrors the events
// recorded by observability.PipelineMetrics.
type Stats struct {
	Posted        int64
	Duplicates    int64
	Rejected      int64
	Completed     int64
	Failed        int64
	Batches       int64
	Writes        int64
	WriteFailures int64
	Coalesced     int64
	Pending       int
}

type counters struct {
	posted        atomic.Int64
	duplicates    atomic.Int64
	rejected      atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	batches       atomic.Int64
	writes        atomic.Int64
	writeFailures atomic.Int64
	coalesced     atomic.Int64
}

func (c *counters) snapshot(pending int) Stats {
	return Stats{
		Posted:        c.posted.Load(),
		Duplicates:    c.duplicates.Load(),
		Rejected:      c.rejected.Load(),
		Completed:     c.completed.Load(),
		Failed:        c.failed.Load(),
		Batches:       c.batches.Load(),
		Writes:        c.writes.Load(),
		WriteFailures: c.writeFailures.Load(),
		Coalesced:     c.coalesced.Load(),
		Pending:       pending,
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot(p.registry.Len())
}
