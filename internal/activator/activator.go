// Package activator lazily loads and registers component implementations
// when elements with their tag names show up in a document.
//
// Tags are registered up front with a Loader. A document-wide mutation
// observer schedules a scan of every inserted element; scans are coalesced
// per node and run once per animation frame. When a scan finds an
// undefined element for a pending tag, the loader runs off the event loop,
// waits for the document to leave the loading state, and the resulting
// factory is defined exactly once.
package activator

import (
	"context"
	"fmt"

	"github.com/conneroisu/hydrate/internal/dom"
	herrors "github.com/conneroisu/hydrate/internal/errors"
	"github.com/conneroisu/hydrate/internal/logging"
	"github.com/conneroisu/hydrate/internal/metrics"
)

// Config holds the optional collaborators of an Activator.
type Config struct {
	// Context is passed to loaders and bounds the readiness wait.
	Context context.Context
	Logger  logging.Logger
	Metrics *metrics.Runtime
	// OnError receives activation failures after they are logged, the way
	// uncaught errors reach a page's error reporting.
	OnError func(tag string, err error)
}

// Activator owns the pending-loader registry for one document.
type Activator struct {
	ctx      context.Context
	doc      *dom.Document
	loop     *dom.Loop
	registry *dom.CustomElementRegistry

	pending map[string]Loader
	order   []string
	loading map[string]bool

	scheduler *frameScheduler
	observer  *dom.MutationObserver

	logger  logging.Logger
	metrics *metrics.Runtime
	handler *herrors.ErrorHandler
	onError func(tag string, err error)
}

// New creates an Activator for doc. cfg may be nil.
func New(doc *dom.Document, cfg *Config) *Activator {
	if cfg == nil {
		cfg = &Config{}
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("activator")

	a := &Activator{
		ctx:      ctx,
		doc:      doc,
		loop:     doc.Loop(),
		registry: doc.Registry(),
		pending:  make(map[string]Loader),
		loading:  make(map[string]bool),
		logger:   logger,
		metrics:  cfg.Metrics,
		handler:  herrors.NewErrorHandler(logger),
		onError:  cfg.OnError,
	}
	a.scheduler = newFrameScheduler(a.loop, a.scan, a.metrics.ScanCoalesced)
	return a
}

// RegisterLazy records loader for tag and schedules a scan of the document
// body. Registering a tag that is still pending fails with
// ErrDuplicateRegistration and leaves the first loader in place.
func (a *Activator) RegisterLazy(tag string, loader Loader) error {
	if loader == nil {
		return herrors.NewValidationError(herrors.ErrCodeInvalidModule, "nil loader").WithComponent(tag)
	}
	if _, exists := a.pending[tag]; exists {
		return herrors.NewRuntimeError(herrors.ErrCodeDuplicateRegistration,
			fmt.Sprintf("cannot lazily define %s twice", tag), ErrDuplicateRegistration).WithComponent(tag)
	}

	a.pending[tag] = loader
	a.order = append(a.order, tag)
	a.observe()

	root := a.doc.Body()
	if root == nil {
		root = a.doc.Root()
	}
	a.scheduler.schedule(root)
	return nil
}

// Pending returns the tags still waiting for registration, in registration
// order.
func (a *Activator) Pending() []string {
	return append([]string(nil), a.order...)
}

// IsLoading reports whether tag's loader is in flight.
func (a *Activator) IsLoading(tag string) bool {
	return a.loading[tag]
}

// Close stops observing the document. Scans and loads already scheduled
// still run.
func (a *Activator) Close() {
	if a.observer != nil {
		a.observer.Disconnect()
		a.observer = nil
	}
}

func (a *Activator) observe() {
	if a.observer != nil {
		return
	}
	a.observer = a.doc.NewMutationObserver(a.onMutations)
	a.observer.Observe(a.doc.Root(), dom.ObserveOptions{ChildList: true, Subtree: true, Composed: true})
}

func (a *Activator) onMutations(records []dom.MutationRecord, _ *dom.MutationObserver) {
	if len(a.pending) == 0 {
		return
	}
	for _, rec := range records {
		for _, n := range rec.AddedNodes {
			if n.IsElement() {
				a.scheduler.schedule(n)
			}
		}
	}
}

// scan starts loading every pending tag with an undefined candidate element
// in node's subtree.
func (a *Activator) scan(node *dom.Node) {
	if !node.IsConnected() {
		return
	}
	a.metrics.ScanRan()

	for _, tag := range a.Pending() {
		loader, ok := a.pending[tag]
		if !ok || a.loading[tag] {
			continue
		}
		if _, defined := a.registry.Get(tag); defined {
			a.logger.Debug(a.ctx, "Tag defined elsewhere, dropping lazy loader", "tag", tag)
			a.drop(tag)
			continue
		}
		if !hasCandidate(node, tag) {
			continue
		}
		a.load(tag, loader)
	}
}

func hasCandidate(node *dom.Node, tag string) bool {
	undefined := func(n *dom.Node) bool {
		return n.Matches(tag) && !n.Defined()
	}
	return undefined(node) || node.QueryDeep(undefined) != nil
}

func (a *Activator) load(tag string, loader Loader) {
	a.loading[tag] = true
	a.metrics.LoadStarted()
	a.logger.Debug(a.ctx, "Loading component", "tag", tag)

	ctx := a.ctx
	ready := a.doc.Ready()
	a.loop.Go(func() func() {
		mod, err := callLoader(ctx, loader)
		if err == nil {
			select {
			case <-ready:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		return func() { a.complete(tag, mod, err) }
	})
}

func callLoader(ctx context.Context, loader Loader) (mod Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return loader(ctx)
}

// complete runs on the loop once a loader has settled and the document is
// ready. The tag leaves the pending registry whatever the outcome.
func (a *Activator) complete(tag string, mod Module, loadErr error) {
	delete(a.loading, tag)
	defer a.drop(tag)

	if loadErr != nil {
		a.fail(tag, "load", herrors.NewRuntimeError(herrors.ErrCodeComponentLoad,
			"component loader failed", loadErr).WithComponent(tag))
		return
	}

	factory, err := mod.Resolve()
	if err != nil {
		a.fail(tag, "invalid_module", herrors.NewRuntimeError(herrors.ErrCodeInvalidModule,
			fmt.Sprintf("invalid module for custom element %s", tag), err).
			WithComponent(tag).WithContext("kind", mod.Kind.String()))
		return
	}

	if _, exists := a.registry.Get(tag); exists {
		a.logger.Debug(a.ctx, "Tag defined while loading, skipping registration", "tag", tag)
		return
	}

	if definer, ok := factory.(Definer); ok {
		err = definer.Define(a.registry, tag)
	} else {
		err = a.registry.Define(tag, factory)
	}
	if err != nil {
		a.fail(tag, "define", herrors.NewRuntimeError(herrors.ErrCodeComponentDefine,
			"component registration failed", err).WithComponent(tag))
		return
	}

	a.metrics.Registered()
	a.logger.Info(a.ctx, "Component registered", "tag", tag, "module", mod.Kind.String())
}

func (a *Activator) fail(tag, reason string, err error) {
	a.metrics.Failed(reason)
	a.handler.Handle(a.ctx, err)
	if a.onError != nil {
		a.onError(tag, err)
	}
}

func (a *Activator) drop(tag string) {
	if _, ok := a.pending[tag]; !ok {
		return
	}
	delete(a.pending, tag)
	for i, t := range a.order {
		if t == tag {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}
