package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/analysisd/pkg/media"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

var errIndexDown = errors.New("media index unavailable")

type fakeIndex struct {
	mu      sync.Mutex
	aspects map[uuid.UUID]media.Aspects
	calls   [][]uuid.UUID
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{aspects: make(map[uuid.UUID]media.Aspects)}
}

func (f *fakeIndex) put(id uuid.UUID, aspects media.Aspects) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.aspects[id] = aspects
}

func (f *fakeIndex) FetchAspects(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]media.Aspects, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]uuid.UUID(nil), ids...))

	if f.err != nil {
		return nil, f.err
	}

	out := make(map[uuid.UUID]media.Aspects)

	for _, id := range ids {
		if aspects, ok := f.aspects[id]; ok {
			out[id] = aspects.Clone()
		}
	}

	return out, nil
}

func (f *fakeIndex) fetchCalls() [][]uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([][]uuid.UUID(nil), f.calls...)
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	parsed  map[uuid.UUID]int
	seen    map[uuid.UUID]media.Aspects
	deleted map[uuid.UUID]int
	failOn  map[uuid.UUID]error
	panicOn map[uuid.UUID]bool

	// gate, when set, holds every call until it is closed or ctx is done.
	gate    chan struct{}
	entered chan uuid.UUID
	calls   atomic.Int64
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		parsed:  make(map[uuid.UUID]int),
		seen:    make(map[uuid.UUID]media.Aspects),
		deleted: make(map[uuid.UUID]int),
		failOn:  make(map[uuid.UUID]error),
		panicOn: make(map[uuid.UUID]bool),
		entered: make(chan uuid.UUID, 1024),
	}
}

func (f *fakeAnalyzer) enter(ctx context.Context, id uuid.UUID) error {
	f.calls.Add(1)
	f.entered <- id

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	panics := f.panicOn[id]
	err := f.failOn[id]
	f.mu.Unlock()

	if panics {
		panic("analyzer exploded on " + id.String())
	}

	return err
}

func (f *fakeAnalyzer) ParseMediaItem(ctx context.Context, item media.Item) error {
	err := f.enter(ctx, item.ID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.parsed[item.ID]++
	f.seen[item.ID] = item.Aspects.Clone()

	return nil
}

func (f *fakeAnalyzer) DeleteAnalysis(ctx context.Context, id uuid.UUID) error {
	err := f.enter(ctx, id)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted[id]++

	return nil
}

func (f *fakeAnalyzer) parseCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.parsed[id]
}

func (f *fakeAnalyzer) deleteCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.deleted[id]
}

func (f *fakeAnalyzer) aspectsOf(id uuid.UUID) media.Aspects {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seen[id]
}

// memStore is an in-memory settings store that flags overlapping writes.
type memStore struct {
	mu      sync.Mutex
	value   settings.PendingActions
	saves   int
	active  atomic.Int32
	overlap atomic.Bool
}

func (s *memStore) Load(context.Context) (settings.PendingActions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value, nil
}

func (s *memStore) Save(_ context.Context, v settings.PendingActions) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.saves++

	return nil
}

func (s *memStore) stored() settings.PendingActions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value
}
