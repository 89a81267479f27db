package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
)

const spanBatch = "pipeline.batch"

// processor loads missing aspects for a batch and runs its actions.
type processor struct {
	index             MediaIndex
	analyzer          Analyzer
	throttle          *LoadThrottle
	batchParallelism  int
	actionParallelism int

	requestPersist func()
	stats          *counters
	logger         *slog.Logger
	metrics        *observability.PipelineMetrics
	tracer         trace.Tracer
}

// run processes batches from in with batchParallelism workers and hands
// every processed batch to emit. It returns nil once in is closed and all
// workers finished, or the first fault.
func (p *processor) run(ctx context.Context, in <-chan batch, emit func(batch)) error {
	g, gctx := errgroup.WithContext(ctx)

	for range p.batchParallelism {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return context.Cause(gctx)
				case b, ok := <-in:
					if !ok {
						return nil
					}

					err := p.process(gctx, b, emit)
					if err != nil {
						return err
					}
				}
			}
		})
	}

	return g.Wait()
}

func (p *processor) process(ctx context.Context, b batch, emit func(batch)) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, spanBatch, trace.WithAttributes(
		attribute.Int("batch.size", len(b.actions)),
		attribute.String("batch.trigger", b.trigger.String()),
	))
	defer span.End()

	p.requestPersist()

	err := p.loadAspects(ctx, b.actions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	ran, failed := p.execute(ctx, b.actions)

	span.SetAttributes(attribute.Int("batch.failed", failed))

	if ctx.Err() != nil {
		// Actions that already ran are still completed; the rest stay pending.
		if len(ran) > 0 {
			emit(batch{actions: ran, trigger: b.trigger})
		}

		return context.Cause(ctx)
	}

	p.stats.batches.Add(1)
	p.metrics.RecordBatch(ctx, b.trigger.String(), len(b.actions), time.Since(start))

	emit(b)

	return nil
}

// loadAspects fetches aspects for analyze actions that carry none.
func (p *processor) loadAspects(ctx context.Context, actions []*action.Action) error {
	seen := make(map[uuid.UUID]struct{})

	var ids []uuid.UUID

	for _, act := range actions {
		if !act.NeedsAspects() {
			continue
		}

		if _, dup := seen[act.MediaItemID]; dup {
			continue
		}

		seen[act.MediaItemID] = struct{}{}
		ids = append(ids, act.MediaItemID)
	}

	if len(ids) == 0 {
		return nil
	}

	waitStart := time.Now()

	err := p.throttle.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.throttle.Release()

	p.metrics.RecordThrottleWait(ctx, time.Since(waitStart))

	found, fetchErr := p.index.FetchAspects(ctx, ids)
	if fetchErr != nil {
		return fmt.Errorf("%w: %d media items: %w", ErrFetchAspects, len(ids), fetchErr)
	}

	for _, act := range actions {
		if aspects, ok := found[act.MediaItemID]; ok {
			act.Aspects = aspects
		}
	}

	p.logger.DebugContext(ctx, "aspects loaded",
		slog.Int("requested", len(ids)),
		slog.Int("found", len(found)))

	return nil
}

// execute runs every action at most once with actionParallelism workers.
// Once ctx is done no further action is started. It returns the actions that ran.
func (p *processor) execute(ctx context.Context, actions []*action.Action) ([]*action.Action, int) {
	var (
		g      errgroup.Group
		failed atomic.Int64
	)

	g.SetLimit(p.actionParallelism)

	started := make([]bool, len(actions))

	for i, act := range actions {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				return nil
			}

			started[i] = true

			if !p.runAction(ctx, act) {
				failed.Add(1)
			}

			return nil
		})
	}

	// Per-action failures are logged, never returned.
	_ = g.Wait()

	ran := make([]*action.Action, 0, len(actions))

	for i, act := range actions {
		if started[i] {
			ran = append(ran, act)
		}
	}

	return ran, int(failed.Load())
}

// runAction executes one action and reports whether it succeeded.
func (p *processor) runAction(ctx context.Context, act *action.Action) (ok bool) {
	attrs := []any{
		slog.String("action_id", act.ID.String()),
		slog.String("media_item_id", act.MediaItemID.String()),
		slog.String("type", act.Type.String()),
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "action panicked", append(attrs, slog.Any("panic", r))...)
			p.metrics.RecordAction(ctx, act.Type.String(), observability.StatusPanic)
			p.stats.failed.Add(1)

			ok = false
		}
	}()

	var err error

	switch act.Type {
	case action.Analyze:
		err = p.analyzer.ParseMediaItem(ctx, act.Item())
	case action.Delete:
		err = p.analyzer.DeleteAnalysis(ctx, act.MediaItemID)
	default:
		err = fmt.Errorf("%w: %d", action.ErrUnknownType, int(act.Type))
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "action failed", append(attrs, slog.Any("error", err))...)
		p.metrics.RecordAction(ctx, act.Type.String(), observability.StatusFailed)
		p.stats.failed.Add(1)

		return false
	}

	p.metrics.RecordAction(ctx, act.Type.String(), observability.StatusOK)

	return true
}
