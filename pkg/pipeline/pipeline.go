// Package pipeline schedules analyze and delete actions for media items.
//
// Actions flow through three linked stages: batching, processing and
// completion. Accepted actions are tracked in a pending registry whose
// snapshot is persisted by a sidecar so that work interrupted by a crash is
// replayed on the next start. A fault in any stage cancels all of them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
	"github.com/Sumatoshi-tech/analysisd/pkg/pending"
)

const tracerName = "analysisd/pipeline"

// Pipeline accepts actions and runs them through the linked stages.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu    sync.Mutex
	state State

	outcome atomic.Int32

	registry *pending.Registry
	batcher  *batcher
	proc     *processor
	done     *completer
	sidecar  *sidecar
	store    SettingsStore

	stages     [stageCount]*Completion
	completion *Completion

	stats        counters
	logger       *slog.Logger
	metrics      *observability.PipelineMetrics
	stopTracking func()
}

// New wires the stages and starts them. The pipeline runs until Complete,
// Cancel, a stage fault, or cancellation of ctx.
func New(ctx context.Context, deps Deps, cfg Config) (*Pipeline, error) {
	cfg = cfg.WithDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	switch {
	case deps.Index == nil:
		return nil, fmt.Errorf("%w: media index", ErrMissingDependency)
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingDependency)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: settings store", ErrMissingDependency)
	}

	lg := deps.Logger
	if lg == nil {
		lg = slog.Default()
	}

	lg = lg.With(slog.String("component", "pipeline"))

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	pctx, cancel := context.WithCancelCause(ctx)

	p := &Pipeline{
		ctx:        pctx,
		cancel:     cancel,
		registry:   pending.NewRegistry(),
		batcher:    newBatcher(cfg.BatchSize, cfg.BatchTimeout, cfg.BoundedCapacity),
		store:      deps.Store,
		completion: newCompletion(),
		logger:     lg,
		metrics:    deps.Metrics,
	}

	for i := range p.stages {
		p.stages[i] = newCompletion()
	}

	p.sidecar = newSidecar(context.WithoutCancel(pctx), deps.Store, p.registry.Snapshot)
	p.sidecar.stats = &p.stats
	p.sidecar.logger = lg
	p.sidecar.metrics = deps.Metrics

	p.proc = &processor{
		index:             deps.Index,
		analyzer:          deps.Analyzer,
		throttle:          NewLoadThrottle(cfg.LoadConcurrency),
		batchParallelism:  cfg.BatchParallelism,
		actionParallelism: cfg.ActionParallelism,
		requestPersist:    func() { p.sidecar.Request() },
		stats:             &p.stats,
		logger:            lg,
		metrics:           deps.Metrics,
		tracer:            tracer,
	}

	p.done = &completer{
		registry:       p.registry,
		requestPersist: func() { p.sidecar.Request() },
		stats:          &p.stats,
	}

	stop, trackErr := deps.Metrics.TrackPending(func() int64 { return int64(p.registry.Len()) })
	if trackErr != nil {
		lg.WarnContext(ctx, "pending gauge disabled", slog.Any("error", trackErr))

		stop = func() {}
	}

	p.stopTracking = stop

	p.sidecar.start()
	p.start()

	return p, nil
}

func (p *Pipeline) start() {
	var g errgroup.Group

	completed := newMailbox[batch]()

	g.Go(func() error {
		return p.runStage(StageBatching, p.batcher.run)
	})

	g.Go(func() error {
		defer completed.close()

		return p.runStage(StageProcessing, func(ctx context.Context) error {
			return p.proc.run(ctx, p.batcher.out, func(b batch) { completed.push(b) })
		})
	})

	g.Go(func() error {
		return p.runStage(StageCompletion, func(ctx context.Context) error {
			return p.done.run(ctx, completed)
		})
	})

	go p.supervise(&g)
}

// runStage runs fn and faults the whole pipeline if it fails. A stage that
// stops because another stage faulted reports the triggering error.
func (p *Pipeline) runStage(stage Stage, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v\n%s", ErrStagePanic, stage, r, debug.Stack())
		}

		if err != nil {
			p.fail(stage, err)
			err = context.Cause(p.ctx)
		}

		p.stages[stage].resolve(err)
	}()

	return fn(observability.ContextWithLogAttrs(p.ctx, slog.String("stage", stage.String())))
}

// fail records the first fault and cancels every stage.
func (p *Pipeline) fail(stage Stage, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	p.state = StateFaulted
	p.cancel(err)

	p.logger.ErrorContext(p.ctx, "pipeline faulted",
		slog.String("stage", stage.String()),
		slog.Any("error", err))
}

func (p *Pipeline) supervise(g *errgroup.Group) {
	stageErr := g.Wait()

	// Final flush after the last registry change.
	p.sidecar.Request()
	p.sidecar.Close()
	p.sidecar.Wait()
	p.stopTracking()

	cause := context.Cause(p.ctx)

	var (
		outcome Outcome
		result  error
	)

	switch {
	case stageErr == nil && cause == nil:
		outcome = OutcomeSucceeded
	case errors.Is(cause, ErrCanceled), errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		outcome = OutcomeCanceled

		p.logger.InfoContext(p.ctx, "pipeline canceled",
			slog.Int("pending", p.registry.Len()),
			slog.Any("cause", cause))
	default:
		outcome = OutcomeFaulted
		result = cause
	}

	p.cancel(nil)

	p.mu.Lock()
	p.state = StateCompleted
	p.mu.Unlock()

	p.outcome.Store(int32(outcome))
	p.completion.resolve(result)

	p.logger.InfoContext(context.WithoutCancel(p.ctx), "pipeline completed",
		slog.String("outcome", outcome.String()),
		slog.Int64("completed", p.stats.completed.Load()),
		slog.Int64("failed", p.stats.failed.Load()),
		slog.Int("pending", p.registry.Len()))
}

// Post accepts act for processing and never blocks. An action whose id is
// already pending is not scheduled again and reports true. Post reports
// false for invalid actions and once the pipeline stopped accepting work.
// The pipeline owns act after a successful Post.
func (p *Pipeline) Post(act *action.Action) bool {
	return p.post(act) != observability.PostRejected
}

// post returns one of the observability Post* results.
func (p *Pipeline) post(act *action.Action) string {
	if act == nil {
		return p.reject(act, ErrNilAction)
	}

	err := act.Validate()
	if err != nil {
		return p.reject(act, err)
	}

	if p.ctx.Err() != nil {
		return p.reject(act, ErrPipelineClosed)
	}

	if !p.registry.Add(act) {
		p.stats.duplicates.Add(1)
		p.metrics.RecordPost(p.ctx, observability.PostDuplicate)
		p.logger.DebugContext(p.ctx, "action already pending", slog.String("action_id", act.ID.String()))

		return observability.PostDuplicate
	}

	if !p.batcher.Submit(act) {
		p.registry.Remove(act.ID)

		return p.reject(act, ErrPipelineClosed)
	}

	p.stats.posted.Add(1)
	p.metrics.RecordPost(p.ctx, observability.PostAccepted)

	return observability.PostAccepted
}

func (p *Pipeline) reject(act *action.Action, reason error) string {
	ctx := context.WithoutCancel(p.ctx)

	p.stats.rejected.Add(1)
	p.metrics.RecordPost(ctx, observability.PostRejected)

	attrs := []any{slog.Any("reason", reason)}
	if act != nil {
		attrs = append(attrs, slog.String("action_id", act.ID.String()))
	}

	p.logger.WarnContext(ctx, "action rejected", attrs...)

	return observability.PostRejected
}

// Restore replays the persisted pending actions through Post and returns
// how many were newly accepted. Records already pending are skipped.
// Restore is meant for startup, before other submissions.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	if p.ctx.Err() != nil {
		return 0, ErrPipelineClosed
	}

	saved, err := p.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore pending actions: %w", err)
	}

	restored := 0

	for _, rec := range saved.Actions {
		if p.post(action.FromRecord(rec)) == observability.PostAccepted {
			restored++
		}
	}

	p.logger.InfoContext(ctx, "pending actions restored",
		slog.Int("stored", len(saved.Actions)),
		slog.Int("restored", restored))

	return restored, nil
}

// Complete stops accepting actions and lets the stages drain.
func (p *Pipeline) Complete() {
	p.mu.Lock()
	if p.state == StateRunning {
		p.state = StateDraining
	}
	p.mu.Unlock()

	p.batcher.Complete()
}

// Cancel abandons work that has not started. Abandoned actions stay pending.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	p.state = StateCanceling
	p.cancel(ErrCanceled)
}

// Completion resolves when every stage stopped and the last write finished.
// Its error is the fault, if any; cancellation resolves with nil.
func (p *Pipeline) Completion() *Completion {
	return p.completion
}

// Outcome reports how the pipeline ended, or OutcomePending while running.
func (p *Pipeline) Outcome() Outcome {
	return Outcome(p.outcome.Load())
}

// StageCompletion returns the completion of a single stage.
func (p *Pipeline) StageCompletion(stage Stage) *Completion {
	return p.stages[stage]
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// PendingActions returns the accepted but not yet completed actions in
// acceptance order, without aspects.
func (p *Pipeline) PendingActions() []action.Action {
	records := p.registry.Snapshot()
	out := make([]action.Action, len(records))

	for i, rec := range records {
		out[i] = *action.FromRecord(rec)
	}

	return out
}
