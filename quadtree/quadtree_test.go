package quadtree_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/mapcluster/quadtree"
)

type testPoint struct {
	name     string
	lat, lon float64
}

func (p *testPoint) Latitude() float64  { return p.lat }
func (p *testPoint) Longitude() float64 { return p.lon }

func newTree(t *testing.T, points ...*testPoint) *quadtree.Tree[*testPoint] {
	t.Helper()

	tree := quadtree.New[*testPoint](quadtree.Options{})
	for _, p := range points {
		require.NoError(t, tree.Insert(p))
	}
	return tree
}

func TestNew_defaults(t *testing.T) {
	t.Parallel()

	tree := quadtree.New[*testPoint](quadtree.Options{BucketCapacity: -1})

	require.Equal(t, quadtree.DefaultBucketCapacity, tree.Options().BucketCapacity)
	require.Equal(t, quadtree.DefaultMaxDepth, tree.Options().MaxDepth)
	require.Zero(t, tree.Len())
	require.Zero(t, tree.Depth())
}

func TestTree_tightClusterAndFarPoint(t *testing.T) {
	t.Parallel()

	near := []*testPoint{
		{"a", 52.00, 5.00},
		{"b", 52.01, 5.01},
		{"c", 51.99, 4.99},
		{"d", 52.02, 5.02},
		{"e", 51.98, 5.03},
	}
	far := &testPoint{"far", 10.0, 10.0}

	tree := newTree(t, append(near, far)...)

	require.Equal(t, 6, tree.Len())
	require.Positive(t, tree.Depth(), "fifth insert must subdivide the root")

	got := tree.QueryRange(quadtree.Rect{North: 52.5, West: 4.5, South: 51.5, East: 5.5})
	require.ElementsMatch(t, near, got, spew.Sdump(got))

	require.Len(t, tree.QueryRange(quadtree.World), 6)
}

func TestTree_Insert_outOfBounds(t *testing.T) {
	t.Parallel()

	tree := newTree(t)

	for _, p := range []*testPoint{
		{"north", 90.5, 0},
		{"south", -91, 0},
		{"east", 0, 180.1},
		{"west", 0, -200},
		{"nan", math.NaN(), 0},
	} {
		err := tree.Insert(p)
		require.Error(t, err, p.name)
		require.True(t, errors.Is(err, quadtree.ErrOutOfBounds), p.name)
	}

	require.Zero(t, tree.Len())
}

func TestTree_Insert_worldCorners(t *testing.T) {
	t.Parallel()

	corners := []*testPoint{
		{"nw", 90, -180},
		{"ne", 90, 180},
		{"sw", -90, -180},
		{"se", -90, 180},
		{"origin", 0, 0},
		{"mid-lon", 45, 0},
	}
	tree := newTree(t, corners...)

	require.ElementsMatch(t, corners, tree.QueryRange(quadtree.World))
}

func TestTree_Clear(t *testing.T) {
	t.Parallel()

	tree := newTree(t, randomPoints(rand.New(rand.NewPCG(1, 2)), 500)...)
	require.Equal(t, 500, tree.Len())

	tree.Clear()

	require.Zero(t, tree.Len())
	require.Empty(t, tree.QueryRange(quadtree.World))

	// Clearing twice is harmless and the tree stays usable.
	tree.Clear()
	require.NoError(t, tree.Insert(&testPoint{"x", 1, 1}))
	require.Len(t, tree.QueryRange(quadtree.World), 1)
}

func TestTree_coincidentPointsRespectMaxDepth(t *testing.T) {
	t.Parallel()

	tree := quadtree.New[*testPoint](quadtree.Options{BucketCapacity: 2, MaxDepth: 6})

	for i := range 100 {
		require.NoError(t, tree.Insert(&testPoint{name: string(rune('a' + i%26)), lat: 12.5, lon: -33.25}))
	}

	require.Equal(t, 6, tree.Depth())
	require.Len(t, tree.QueryRange(quadtree.Rect{North: 12.5, West: -33.25, South: 12.5, East: -33.25}), 100)
}

func TestTree_QueryRange_deterministic(t *testing.T) {
	t.Parallel()

	tree := newTree(t, randomPoints(rand.New(rand.NewPCG(3, 4)), 2000)...)
	r := quadtree.Rect{North: 40, West: -20, South: -10, East: 60}

	first := tree.QueryRange(r)
	for range 3 {
		require.Equal(t, first, tree.QueryRange(r))
	}
}

func TestTree_Search_stopsEarly(t *testing.T) {
	t.Parallel()

	tree := newTree(t, randomPoints(rand.New(rand.NewPCG(5, 6)), 100)...)

	var seen int
	tree.Search(quadtree.World, func(*testPoint) bool {
		seen++
		return seen < 10
	})

	require.Equal(t, 10, seen)
}

func TestRect(t *testing.T) {
	t.Parallel()

	r := quadtree.Rect{North: 10, West: -10, South: -10, East: 10}

	t.Run("Contains", func(t *testing.T) {
		t.Parallel()

		assert.True(t, r.Contains(10, 10), "corner is inclusive")
		assert.True(t, r.Contains(0, -10))
		assert.False(t, r.Contains(10.0001, 0))
		assert.False(t, r.Contains(0, math.NaN()))
	})

	t.Run("Intersects", func(t *testing.T) {
		t.Parallel()

		assert.True(t, r.Intersects(quadtree.Rect{North: 20, West: 10, South: 10, East: 20}), "touching corner")
		assert.True(t, r.Intersects(quadtree.Rect{North: 1, West: -1, South: -1, East: 1}), "nested")
		assert.False(t, r.Intersects(quadtree.Rect{North: 20, West: 10.5, South: 11, East: 20}))
	})

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()

		assert.True(t, r.Valid())
		assert.False(t, quadtree.Rect{North: -1, South: 1}.Valid())
		assert.False(t, quadtree.Rect{North: math.NaN()}.Valid())
		assert.False(t, quadtree.Rect{North: 1, West: 5, South: 0, East: 4}.Valid())
	})

	t.Run("Bound", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, r, quadtree.FromBound(r.Bound()))
	})
}

// TestTree_properties checks containment and completeness against a brute
// force scan over random point sets and random ranges.
func TestTree_properties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 8))
	points := randomPoints(rng, 1000)
	tree := newTree(t, points...)

	for range 100 {
		r := randomRect(rng)
		got := tree.QueryRange(r)

		for _, p := range got {
			require.True(t, r.Contains(p.lat, p.lon), "returned point outside range: %s", spew.Sdump(p, r))
		}

		require.ElementsMatch(t, bruteForce(points, r), got)
	}
}

func FuzzTree(f *testing.F) {
	f.Add(uint16(10), uint8(4), 10.0, -10.0, -10.0, 10.0)
	f.Add(uint16(300), uint8(1), 90.0, -180.0, -90.0, 180.0)

	f.Fuzz(func(t *testing.T, count uint16, capacity uint8, north, west, south, east float64) {
		r := quadtree.Rect{North: north, West: west, South: south, East: east}
		if !r.Valid() {
			t.Skip()
		}

		tree := quadtree.New[*testPoint](quadtree.Options{BucketCapacity: int(capacity)})
		points := randomPoints(rand.New(rand.NewPCG(uint64(count), uint64(capacity))), int(count%2048))
		for _, p := range points {
			require.NoError(t, tree.Insert(p))
		}

		require.ElementsMatch(t, bruteForce(points, r), tree.QueryRange(r))
	})
}

func randomPoints(rng *rand.Rand, n int) []*testPoint {
	points := make([]*testPoint, n)
	for i := range points {
		points[i] = &testPoint{
			lat: rng.Float64()*180 - 90,
			lon: rng.Float64()*360 - 180,
		}
	}
	return points
}

func randomRect(rng *rand.Rand) quadtree.Rect {
	lat1, lat2 := rng.Float64()*180-90, rng.Float64()*180-90
	lon1, lon2 := rng.Float64()*360-180, rng.Float64()*360-180

	return quadtree.Rect{
		North: math.Max(lat1, lat2),
		West:  math.Min(lon1, lon2),
		South: math.Min(lat1, lat2),
		East:  math.Max(lon1, lon2),
	}
}

func bruteForce(points []*testPoint, r quadtree.Rect) []*testPoint {
	var matches []*testPoint
	for _, p := range points {
		if r.Contains(p.lat, p.lon) {
			matches = append(matches, p)
		}
	}
	return matches
}
