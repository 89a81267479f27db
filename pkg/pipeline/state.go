package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// State is the lifecycle state of a Pipeline.
type State int

// Pipeline states.
const (
	StateRunning State = iota
	StateDraining
	StateCanceling
	StateFaulted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCanceling:
		return "canceling"
	case StateFaulted:
		return "faulted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is how a completed Pipeline ended.
type Outcome int

// Pipeline outcomes. OutcomePending is reported until the pipeline completes.
const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeCanceled
	OutcomeFaulted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stage identifies one of the linked pipeline stages.
type Stage int

// Pipeline stages in data-flow order.
const (
	StageBatching Stage = iota
	StageProcessing
	StageCompletion
)

// stageCount is the number of linked stages.
const stageCount = 3

func (s Stage) String() string {
	switch s {
	case StageBatching:
		return "batching"
	case StageProcessing:
		return "processing"
	case StageCompletion:
		return "completion"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Trigger is the reason a batch was emitted.
type Trigger int

// Batch triggers.
const (
	TriggerSize Trigger = iota
	TriggerTimeout
	TriggerDrain
)

func (t Trigger) String() string {
	switch t {
	case TriggerSize:
		return "size"
	case TriggerTimeout:
		return "timeout"
	case TriggerDrain:
		return "drain"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Completion is a one-shot signal carrying the error a task finished with.
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the task has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the final error, or nil while the task is still running.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
