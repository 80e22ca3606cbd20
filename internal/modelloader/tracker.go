// Package modelloader reports embedding model readiness to any number of
// listeners while running at most one load attempt at a time.
package modelloader

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"golang.org/x/sync/singleflight"

	"planrag/internal/domain"
)

// State is the tracker's lifecycle phase.
type State string

const (
	StateUnstarted   State = "unstarted"
	StateDownloading State = "downloading"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateError       State = "error"
)

// Progress is delivered to every registered callback.
type Progress struct {
	State    State
	Progress int
	Err      error
}

// Model is the part of the embedding generator the tracker drives.
type Model interface {
	Initialize(ctx context.Context) error
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	ModelInfo() domain.ModelInfo
}

// Tracker is safe for concurrent use.
type Tracker struct {
	model Model
	log   core.Logger

	mu        sync.Mutex
	state     State
	loaded    bool
	listeners []listener
	nextID    uint64

	attempt singleflight.Group
}

type listener struct {
	id uint64
	fn func(Progress)
}

func NewTracker(model Model, log core.Logger) *Tracker {
	if log == nil {
		log = logger.Global()
	}
	return &Tracker{model: model, log: log, state: StateUnstarted}
}

// LoadModels waits until the model is ready, reporting progress to
// onProgress. When the model is already loaded only onProgress is told so.
// Otherwise the caller joins the attempt in flight or starts one, and
// onProgress stays registered until that attempt settles for this caller.
func (t *Tracker) LoadModels(ctx context.Context, onProgress func(Progress)) error {
	t.mu.Lock()
	// ready has been reported once the state says so, even before loaded flips
	if t.loaded || t.state == StateReady {
		t.mu.Unlock()
		if onProgress != nil {
			onProgress(Progress{State: StateReady, Progress: 100})
		}
		return nil
	}
	if onProgress != nil {
		id := t.nextID
		t.nextID++
		t.listeners = append(t.listeners, listener{id: id, fn: onProgress})
		defer t.unregister(id)
	}
	t.mu.Unlock()

	ch := t.attempt.DoChan("load", func() (any, error) {
		return nil, t.load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = slices.DeleteFunc(t.listeners, func(l listener) bool { return l.id == id })
}

func (t *Tracker) load(ctx context.Context) error {
	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.report(Progress{State: StateDownloading, Progress: 0})
	if err := t.model.Initialize(ctx); err != nil {
		return t.failed(err)
	}
	t.report(Progress{State: StateLoading, Progress: 50})
	if _, err := t.model.EmbedSingle(ctx, "test"); err != nil {
		return t.failed(fmt.Errorf("smoke embedding: %w", err))
	}

	t.report(Progress{State: StateReady, Progress: 100})
	t.mu.Lock()
	t.loaded = true
	t.mu.Unlock()
	info := t.model.ModelInfo()
	t.log.Infow("embedding model ready", "model", info.Name, "dimensions", info.Dimensions)
	return nil
}

func (t *Tracker) failed(err error) error {
	t.log.Errorw("embedding model failed to load", "error", err.Error())
	t.report(Progress{State: StateError, Progress: 0, Err: err})
	return err
}

// report records the state and fans p out to the registered listeners.
func (t *Tracker) report(p Progress) {
	t.mu.Lock()
	t.state = p.State
	ls := slices.Clone(t.listeners)
	t.mu.Unlock()
	for _, l := range ls {
		l.fn(p)
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func (t *Tracker) ModelInfo() domain.ModelInfo { return t.model.ModelInfo() }
