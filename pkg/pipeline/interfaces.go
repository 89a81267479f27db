package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/analysisd/pkg/media"
	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

// MediaIndex resolves the aspects of media items. Ids it does not know are
// absent from the result.
type MediaIndex interface {
	FetchAspects(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]media.Aspects, error)
}

// Analyzer performs the per-action work.
type Analyzer interface {
	ParseMediaItem(ctx context.Context, item media.Item) error
	DeleteAnalysis(ctx context.Context, mediaItemID uuid.UUID) error
}

// SettingsStore persists the pending-action set.
type SettingsStore = settings.Store[settings.PendingActions]

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Index    MediaIndex
	Analyzer Analyzer
	Store    SettingsStore

	// Optional.
	Logger  *slog.Logger
	Metrics *observability.PipelineMetrics
	Tracer  trace.Tracer
}
