// Package cluster groups indexed points into one cluster per geographic tile
// of a zoom-dependent grid, and diffs consecutive cluster sets so a map can
// update markers incrementally.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"web/mapcluster/quadtree"
)

const (
	// MinZoom and MaxZoom bound the zoom accepted by GridAt. Below -1 the
	// grid would have no tiles; above 30 the tile count overflows practical
	// iteration.
	MinZoom = -1.0
	MaxZoom = 30.0

	// MaxTiles bounds the number of tiles one pass may visit. Viewports whose
	// cover is larger are rejected with ErrInvalidViewport.
	MaxTiles = 1 << 20

	// checkEvery is the number of tiles visited between cancellation checks.
	checkEvery = 64
)

// Errors returned synchronously for arguments Clusters cannot serve.
var (
	ErrInvalidViewport = errors.New("cluster: invalid viewport")
	ErrInvalidZoom     = errors.New("cluster: invalid zoom level")
)

// Index is the read side of the spatial index the clusterer queries.
type Index[T quadtree.Point] interface {
	QueryRange(r quadtree.Rect) []T
}

// Cluster is the set of items that fell into one tile. Clusters with a single
// item are regular clusters with Count() == 1.
type Cluster[T quadtree.Point] struct {
	Latitude  float64
	Longitude float64
	Items     []T

	// Bounds is the originating tile. It is used for containment tests
	// during reconciliation, not for display.
	Bounds quadtree.Rect
}

// Key identifies a cluster by the exact bit pattern of its centroid.
type Key struct {
	lat, lon uint64
}

// Key returns the identity of c. Two clusters are the same cluster iff their
// centroids are bit-identical; no epsilon is applied.
func (c *Cluster[T]) Key() Key {
	return Key{lat: math.Float64bits(c.Latitude), lon: math.Float64bits(c.Longitude)}
}

// String renders the key as 32 hex digits, latitude bits first.
func (k Key) String() string {
	return fmt.Sprintf("%016x%016x", k.lat, k.lon)
}

// Count returns the number of items in the cluster.
func (c *Cluster[T]) Count() int {
	return len(c.Items)
}

// Contains reports whether the coordinate lies in the cluster's tile.
func (c *Cluster[T]) Contains(lat, lon float64) bool {
	return c.Bounds.Contains(lat, lon)
}

func (c *Cluster[T]) String() string {
	return fmt.Sprintf("cluster(%v, %v; %d items)", c.Latitude, c.Longitude, len(c.Items))
}

// newCluster computes the centroid of items, summing in the order given so
// that repeated passes over the same index state produce identical bits.
func newCluster[T quadtree.Point](items []T, bounds quadtree.Rect) *Cluster[T] {
	var totalLat, totalLon float64
	for _, item := range items {
		totalLat += item.Latitude()
		totalLon += item.Longitude()
	}

	n := float64(len(items))
	return &Cluster[T]{
		Latitude:  totalLat / n,
		Longitude: totalLon / n,
		Items:     items,
		Bounds:    bounds,
	}
}

// Clusterer computes tile clusters over an index.
type Clusterer[T quadtree.Point] struct {
	index Index[T]
}

// New returns a clusterer reading from index.
func New[T quadtree.Point](index Index[T]) *Clusterer[T] {
	return &Clusterer[T]{index: index}
}

// Clusters returns one cluster per non-empty tile covering viewport at zoom.
// Tiles are visited row by row, west to east within a row. A viewport whose
// West is greater than its East crosses the antimeridian.
//
// ctx is checked every few tiles; on cancellation the partial result is
// dropped and ctx.Err() returned.
func (c *Clusterer[T]) Clusters(ctx context.Context, viewport quadtree.Rect, zoom float64) ([]*Cluster[T], error) {
	if err := ValidateViewport(viewport, zoom); err != nil {
		return nil, err
	}

	grid := GridAt(zoom)
	startY, endY, columns := grid.cover(viewport)

	var clusters []*Cluster[T]
	visited := 0
	for y := startY; y <= endY; y++ {
		for _, span := range columns {
			for x := span.start; x <= span.end; x++ {
				if visited%checkEvery == 0 {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
				}
				visited++

				bounds := grid.Tile(x, y)

				items := c.index.QueryRange(bounds)
				if len(items) == 0 {
					continue
				}

				clusters = append(clusters, newCluster(items, bounds))
			}
		}
	}

	return clusters, nil
}

// ValidateViewport checks the arguments accepted by Clusters, including that
// the viewport is covered by at most MaxTiles tiles at zoom.
func ValidateViewport(viewport quadtree.Rect, zoom float64) error {
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, zoom)
	}

	// West > East is allowed: the viewport wraps the antimeridian.
	normalized := viewport
	if normalized.West > normalized.East {
		normalized.West, normalized.East = normalized.East, normalized.West
	}
	if !normalized.Valid() || !quadtree.World.Contains(viewport.North, viewport.West) ||
		!quadtree.World.Contains(viewport.South, viewport.East) {
		return fmt.Errorf("%w: %+v", ErrInvalidViewport, viewport)
	}

	if tiles := GridAt(zoom).tileCount(viewport); tiles > MaxTiles {
		return fmt.Errorf("%w: %d tiles at zoom %v exceeds %d", ErrInvalidViewport, tiles, zoom, MaxTiles)
	}

	return nil
}
