// Package manager drives clustering for one map: it owns the spatial index,
// recomputes clusters whenever the viewport settles or the item set changes,
// and hands each change to a Renderer as a reconciliation against the set
// delivered before it.
//
// All work runs on a single worker goroutine. Submitting work never blocks,
// and a newer request of the same kind cancels the older one.
package manager

import (
	"context"
	"errors"
	"slices"
	"sync"

	"web/mapcluster/cluster"
	"web/mapcluster/internal/logging"
	"web/mapcluster/quadtree"
)

// checkEvery is the number of inserts between cancellation checks during a
// rebuild.
const checkEvery = 1024

// Errors returned by SetItems, OnViewportIdle and Close.
var (
	ErrNilItems    = errors.New("manager: nil item set")
	ErrNilRenderer = errors.New("manager: nil renderer")
	ErrClosed      = errors.New("manager: closed")
)

// Renderer receives every published cluster change. Render is called on the
// manager's worker goroutine, one call at a time, and must not call Close.
type Renderer[T quadtree.Point] interface {
	Render(r cluster.Reconciliation[T])
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc[T quadtree.Point] func(r cluster.Reconciliation[T])

func (f RendererFunc[T]) Render(r cluster.Reconciliation[T]) {
	f(r)
}

// Options configures the index built for every item set. Zero values select
// the quadtree defaults.
type Options struct {
	BucketCapacity int
	MaxDepth       int
}

type viewport struct {
	bounds quadtree.Rect
	zoom   float64
}

type task struct {
	name   string
	run    func()
	cancel context.CancelFunc
}

// Manager owns the index for one item set and publishes cluster changes for
// the latest reported viewport. It is safe for concurrent use.
type Manager[T quadtree.Point] struct {
	renderer Renderer[T]
	opts     quadtree.Options

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu            sync.Mutex
	queue         []task
	closed        bool
	cancelRebuild context.CancelFunc
	cancelCluster context.CancelFunc
	last          *viewport

	// Owned by the worker goroutine.
	index    *quadtree.Tree[T]
	baseline []*cluster.Cluster[T]
}

// New starts a manager with an empty index. Close must be called to stop its
// worker goroutine.
func New[T quadtree.Point](renderer Renderer[T], opts Options) (*Manager[T], error) {
	if renderer == nil {
		return nil, ErrNilRenderer
	}

	treeOpts := quadtree.Options{BucketCapacity: opts.BucketCapacity, MaxDepth: opts.MaxDepth}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager[T]{
		renderer: renderer,
		opts:     treeOpts,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		index:    quadtree.New[T](treeOpts),
	}

	go m.run()

	return m, nil
}

// SetItems replaces the item set. Any rebuild still pending or in progress is
// cancelled. Once the new index is in place, clusters are recomputed for the
// last reported viewport, if there is one.
//
// The slice is copied; the items themselves must not move afterwards.
func (m *Manager[T]) SetItems(items []T) error {
	if items == nil {
		return ErrNilItems
	}
	items = slices.Clone(items)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.cancelRebuild != nil {
		m.cancelRebuild()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelRebuild = cancel

	m.enqueueLocked(task{
		name:   "rebuild",
		run:    func() { m.rebuild(ctx, items) },
		cancel: cancel,
	})

	return nil
}

// OnViewportIdle reports that the map settled on viewport at zoom. Any cluster
// computation still pending or in progress is cancelled.
func (m *Manager[T]) OnViewportIdle(bounds quadtree.Rect, zoom float64) error {
	if err := cluster.ValidateViewport(bounds, zoom); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.last = &viewport{bounds: bounds, zoom: zoom}
	m.scheduleClustersLocked(*m.last)

	return nil
}

// Close cancels outstanding work and waits for the worker to exit. Renderer
// calls already in progress complete first.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	for _, t := range m.queue {
		t.cancel()
	}
	m.queue = nil
	m.mu.Unlock()

	m.cancel()
	m.signal()
	<-m.done

	return nil
}

func (m *Manager[T]) scheduleClustersLocked(vp viewport) {
	if m.cancelCluster != nil {
		m.cancelCluster()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelCluster = cancel

	m.enqueueLocked(task{
		name:   "cluster",
		run:    func() { m.computeClusters(ctx, vp) },
		cancel: cancel,
	})
}

func (m *Manager[T]) enqueueLocked(t task) {
	m.queue = append(m.queue, t)
	m.signal()
}

func (m *Manager[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager[T]) run() {
	defer close(m.done)

	for {
		t, ok := m.next()
		if !ok {
			return
		}
		t.run()
		t.cancel()
	}
}

// next blocks until a task is queued or the manager is closed.
func (m *Manager[T]) next() (task, bool) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return task{}, false
		}
		if len(m.queue) > 0 {
			t := m.queue[0]
			m.queue[0] = task{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return t, true
		}
		m.mu.Unlock()

		<-m.wake
	}
}

func (m *Manager[T]) rebuild(ctx context.Context, items []T) {
	log := logging.Logger()
	log.Debug("rebuild started", "items", len(items))

	tree := quadtree.New[T](m.opts)
	skipped := 0
	for i, item := range items {
		if i%checkEvery == 0 && ctx.Err() != nil {
			log.Debug("rebuild cancelled", "inserted", i)
			return
		}
		if err := tree.Insert(item); err != nil {
			skipped++
			log.Warn("skipping item", "error", err)
		}
	}

	if ctx.Err() != nil {
		log.Debug("rebuild cancelled", "inserted", len(items))
		return
	}

	m.index = tree
	log.Debug("rebuild finished", "indexed", tree.Len(), "skipped", skipped, "depth", tree.Depth())

	m.mu.Lock()
	if !m.closed && m.last != nil {
		m.scheduleClustersLocked(*m.last)
	}
	m.mu.Unlock()
}

func (m *Manager[T]) computeClusters(ctx context.Context, vp viewport) {
	log := logging.Logger()
	log.Debug("clustering started", "viewport", vp.bounds, "zoom", vp.zoom)

	clusters, err := cluster.New[T](m.index).Clusters(ctx, vp.bounds, vp.zoom)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("clustering cancelled", "zoom", vp.zoom)
		} else {
			log.Error("clustering failed", "error", err)
		}
		return
	}

	if ctx.Err() != nil {
		log.Debug("clustering cancelled", "zoom", vp.zoom)
		return
	}

	r := cluster.Reconcile(m.baseline, clusters)
	m.baseline = clusters

	log.Debug("rendering clusters",
		"clusters", len(clusters), "added", len(r.Added), "removed", len(r.Removed), "kept", len(r.Kept))
	m.renderer.Render(r)
}
