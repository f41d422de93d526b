package manager_test

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"web/mapcluster/cluster"
	"web/mapcluster/dataset"
	"web/mapcluster/internal/logging"
	"web/mapcluster/manager"
	"web/mapcluster/quadtree"
)

var netherlands = quadtree.Rect{North: 53.7, West: 3.2, South: 50.75, East: 7.22}

// recorder collects every reconciliation it is handed.
type recorder struct {
	mu      sync.Mutex
	renders []cluster.Reconciliation[*dataset.Item]
}

func (r *recorder) Render(rec cluster.Reconciliation[*dataset.Item]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, rec)
}

func (r *recorder) all() []cluster.Reconciliation[*dataset.Item] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cluster.Reconciliation[*dataset.Item](nil), r.renders...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func newManager(t *testing.T, renderer manager.Renderer[*dataset.Item]) *manager.Manager[*dataset.Item] {
	t.Helper()

	m, err := manager.New(renderer, manager.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func totalItems(clusters []*cluster.Cluster[*dataset.Item]) int {
	total := 0
	for _, c := range clusters {
		total += c.Count()
	}
	return total
}

func TestNew_nilRenderer(t *testing.T) {
	t.Parallel()

	_, err := manager.New[*dataset.Item](nil, manager.Options{})
	require.True(t, errors.Is(err, manager.ErrNilRenderer))
}

func TestManager_invalidInput(t *testing.T) {
	t.Parallel()

	m := newManager(t, &recorder{})

	require.ErrorIs(t, m.SetItems(nil), manager.ErrNilItems)
	require.ErrorIs(t, m.OnViewportIdle(quadtree.Rect{North: 0, South: 10}, 3), cluster.ErrInvalidViewport)
	require.ErrorIs(t, m.OnViewportIdle(quadtree.World, cluster.MaxZoom), cluster.ErrInvalidViewport)
}

// TestManager_closeInterruptsLargePass starts the largest pass a viewport may
// ask for and checks Close does not wait for it to finish.
func TestManager_closeInterruptsLargePass(t *testing.T) {
	t.Parallel()

	m, err := manager.New[*dataset.Item](&recorder{}, manager.Options{})
	require.NoError(t, err)

	require.NoError(t, m.SetItems(dataset.Generate(1000, quadtree.World, 9)))
	require.NoError(t, m.OnViewportIdle(quadtree.World, 9))
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Close())
	require.Less(t, time.Since(start), time.Second)
}

func TestManager_rebuildTriggersRecompute(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := newManager(t, rec)

	require.NoError(t, m.OnViewportIdle(netherlands, 5))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.True(t, rec.all()[0].Empty(), "nothing indexed yet")

	items := dataset.Generate(500, netherlands, 1)
	require.NoError(t, m.SetItems(items))

	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 5*time.Millisecond)
	r := rec.all()[1]
	require.Empty(t, r.Removed)
	require.Empty(t, r.Kept)
	require.Equal(t, len(items), totalItems(r.Clusters()))
}

func TestManager_setItemsWithoutViewportRendersNothing(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := newManager(t, rec)

	require.NoError(t, m.SetItems(dataset.Generate(100, netherlands, 1)))
	require.NoError(t, m.Close())
	require.Zero(t, rec.count())
}

// TestManager_baselineChains zooms in and checks the second reconciliation is
// taken against the set delivered by the first.
func TestManager_baselineChains(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := newManager(t, rec)

	require.NoError(t, m.SetItems(dataset.Generate(2000, netherlands, 2)))
	require.NoError(t, m.OnViewportIdle(netherlands, 5))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.OnViewportIdle(netherlands, 7))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 5*time.Millisecond)

	renders := rec.all()
	first := renders[0].Clusters()

	previous := map[cluster.Key]bool{}
	for _, c := range renders[1].Removed {
		previous[c.Cluster.Key()] = true
	}
	for _, c := range renders[1].Kept {
		previous[c.Key()] = true
	}

	require.Len(t, previous, len(first))
	for _, c := range first {
		require.True(t, previous[c.Key()])
	}
}

// TestManager_supersededTasksNeverRender blocks the worker inside Render and
// queues several viewports behind it. Only the newest one may be rendered.
func TestManager_supersededTasksNeverRender(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	rendering := make(chan struct{}, 1)
	rec := &recorder{}

	m := newManager(t, manager.RendererFunc[*dataset.Item](func(r cluster.Reconciliation[*dataset.Item]) {
		select {
		case rendering <- struct{}{}:
			<-release
		default:
		}
		rec.Render(r)
	}))

	require.NoError(t, m.SetItems(dataset.Generate(1000, netherlands, 3)))
	require.NoError(t, m.OnViewportIdle(netherlands, 3))
	<-rendering

	for _, zoom := range []float64{4, 5, 6, 7} {
		require.NoError(t, m.OnViewportIdle(netherlands, zoom))
	}
	close(release)

	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return rec.count() > 2 }, 100*time.Millisecond, 10*time.Millisecond)

	last := rec.all()[1].Clusters()
	want := cluster.GridAt(7)
	for _, c := range last {
		require.InDelta(t, want.StepLat, c.Bounds.North-c.Bounds.South, 1e-9)
	}
}

func TestManager_latestItemSetWins(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := newManager(t, rec)

	require.NoError(t, m.OnViewportIdle(netherlands, 6))
	require.NoError(t, m.SetItems(dataset.Generate(20000, netherlands, 4)))
	small := dataset.Generate(10, netherlands, 5)
	require.NoError(t, m.SetItems(small))

	require.Eventually(t, func() bool {
		renders := rec.all()
		return len(renders) > 0 && totalItems(renders[len(renders)-1].Clusters()) == len(small)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestManager_setItemsCopiesSlice(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := newManager(t, rec)

	items := dataset.Generate(50, netherlands, 6)
	require.NoError(t, m.SetItems(items))
	items[0] = &dataset.Item{Lat: 0, Lon: 0}

	require.NoError(t, m.OnViewportIdle(netherlands, 4))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, 50, totalItems(rec.all()[0].Clusters()))
}

// TestManager_skipsOutOfBoundsItems swaps the package logger, so it does not
// run in parallel.
func TestManager_skipsOutOfBoundsItems(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { logging.SetLogger(nil) })

	rec := &recorder{}
	m, err := manager.New[*dataset.Item](rec, manager.Options{BucketCapacity: 8})
	require.NoError(t, err)

	items := dataset.Generate(100, netherlands, 7)
	items = append(items, &dataset.Item{Lat: 100, Lon: 5})

	require.NoError(t, m.SetItems(items))
	require.NoError(t, m.OnViewportIdle(netherlands, 4))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())

	require.Equal(t, 100, totalItems(rec.all()[0].Clusters()))
	require.Contains(t, buf.String(), "skipping item")
	require.Contains(t, buf.String(), quadtree.ErrOutOfBounds.Error())
}

func TestManager_close(t *testing.T) {
	t.Parallel()

	m, err := manager.New[*dataset.Item](&recorder{}, manager.Options{})
	require.NoError(t, err)

	require.NoError(t, m.SetItems(dataset.Generate(50000, netherlands, 8)))
	require.NoError(t, m.Close())

	require.ErrorIs(t, m.Close(), manager.ErrClosed)
	require.ErrorIs(t, m.SetItems([]*dataset.Item{}), manager.ErrClosed)
	require.ErrorIs(t, m.OnViewportIdle(netherlands, 3), manager.ErrClosed)
}
