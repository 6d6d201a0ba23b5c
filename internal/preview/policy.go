package preview

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/model"
)

// Mode is the toolbox presentation of an instance.
type Mode string

const (
	ModeFlat        Mode = "flat"
	ModeCategorized Mode = "categorized"
)

func modeOf(categorized bool) Mode {
	if categorized {
		return ModeCategorized
	}
	return ModeFlat
}

// Source supplies the canonical documents a refresh shows.
type Source interface {
	CanonicalToolbox(ctx context.Context) (*document.Node, error)
	CanonicalWorkspace(ctx context.Context) (*document.Node, error)
	Options() model.InjectionOptions
}

// Stats counts how refreshes were applied.
type Stats struct {
	Instantiations   int `json:"instantiations"`
	Reinstantiations int `json:"reinstantiations"`
	Swaps            int `json:"swaps"`
}

// Snapshot describes the preview after a refresh.
type Snapshot struct {
	Generation     uint64                 `json:"generation"`
	Mode           Mode                   `json:"mode"`
	Reinstantiated bool                   `json:"reinstantiated"`
	Toolbox        string                 `json:"toolbox"`
	Workspace      string                 `json:"workspace"`
	Options        model.InjectionOptions `json:"options"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Policy owns the preview instance. It is the only code allowed to dispose
// or create one.
type Policy struct {
	source   Source
	factory  InstanceFactory
	instance Instance
	logger   logging.Logger

	stats      Stats
	generation uint64

	// Subscribers may register from other goroutines.
	mu          sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
	last        *Snapshot
}

// NewPolicy creates a policy. No instance exists until the first refresh.
func NewPolicy(source Source, factory InstanceFactory, logger logging.Logger) *Policy {
	if factory == nil {
		factory = NewHeadlessInstance
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Policy{
		source:      source,
		factory:     factory,
		logger:      logger.WithComponent("preview"),
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Refresh brings the preview up to date. A toolbox whose shape differs
// from the live instance rebuilds the instance; otherwise the toolbox is
// swapped in place. The pre-loaded workspace is replayed either way.
func (p *Policy) Refresh(ctx context.Context) error {
	return p.refresh(ctx, false)
}

// Reinstantiate rebuilds the instance unconditionally, as needed after the
// injection options change.
func (p *Policy) Reinstantiate(ctx context.Context) error {
	return p.refresh(ctx, true)
}

func (p *Policy) refresh(ctx context.Context, force bool) error {
	perf := logging.StartOperation(p.logger, "preview_refresh")

	toolbox, err := p.source.CanonicalToolbox(ctx)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	opts := p.source.Options()
	categorized := toolbox.HasCategories()

	rebuilt := false
	switch {
	case p.instance == nil:
		if err := p.build(toolbox, opts); err != nil {
			perf.EndWithError(ctx, err)
			return err
		}
		p.stats.Instantiations++
		rebuilt = true
	case force || p.instance.Categorized() != categorized:
		if err := p.build(toolbox, opts); err != nil {
			perf.EndWithError(ctx, err)
			return err
		}
		p.stats.Reinstantiations++
		rebuilt = true
		p.logger.Info(ctx, "Preview rebuilt", "mode", modeOf(categorized), "forced", force)
	case opts.ReadOnly:
		// A read-only editor has no toolbox to update.
	default:
		if err := p.instance.UpdateToolbox(toolbox); err != nil {
			perf.EndWithError(ctx, err)
			return err
		}
		p.stats.Swaps++
	}

	workspace, err := p.source.CanonicalWorkspace(ctx)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	p.instance.Clear()
	if err := p.instance.LoadDocument(workspace); err != nil {
		err = errors.NewInternalError(errors.ErrCodeInternalError, "replay pre-loaded workspace into preview", err).
			WithComponent("preview")
		perf.EndWithError(ctx, err)
		return err
	}

	p.generation++
	p.publish(Snapshot{
		Generation:     p.generation,
		Mode:           modeOf(p.instance.Categorized()),
		Reinstantiated: rebuilt,
		Toolbox:        toolbox.String(),
		Workspace:      workspace.String(),
		Options:        opts,
		Timestamp:      time.Now(),
	})
	perf.End(ctx, "generation", p.generation, "rebuilt", rebuilt)
	return nil
}

func (p *Policy) build(toolbox *document.Node, opts model.InjectionOptions) error {
	if p.instance != nil {
		p.instance.Dispose()
		p.instance = nil
	}
	inst, err := p.factory(Options{Toolbox: toolbox, Injection: opts})
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "construct preview instance", err).
			WithComponent("preview")
	}
	p.instance = inst
	return nil
}

// Instance returns the live instance, or nil before the first refresh.
func (p *Policy) Instance() Instance {
	return p.instance
}

// Stats returns the refresh counters.
func (p *Policy) Stats() Stats {
	return p.stats
}

// Generation counts completed refreshes.
func (p *Policy) Generation() uint64 {
	return p.generation
}

// Close disposes the live instance.
func (p *Policy) Close() {
	if p.instance != nil {
		p.instance.Dispose()
		p.instance = nil
	}
}

// Subscribe registers fn to receive every published snapshot. fn runs on
// the refreshing goroutine and must not block. The returned function
// removes the subscription.
func (p *Policy) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSub++
	id := p.nextSub
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// Last returns the most recent snapshot.
func (p *Policy) Last() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return Snapshot{}, false
	}
	return *p.last, true
}

func (p *Policy) publish(s Snapshot) {
	p.mu.Lock()
	p.last = &s
	subs := make([]func(Snapshot), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
