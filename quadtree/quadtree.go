// Package quadtree implements a bucketed point quad-tree over latitude and
// longitude, answering inclusive bounding-box range queries.
package quadtree

import (
	"errors"
	"fmt"
)

const (
	// DefaultBucketCapacity is the number of points a leaf holds before it
	// subdivides.
	DefaultBucketCapacity = 4

	// DefaultMaxDepth bounds subdivision. At depth 24 a world-rooted leaf
	// spans roughly 2e-5 degrees of longitude.
	DefaultMaxDepth = 24
)

// ErrOutOfBounds is returned when a point lies outside the world bounds.
var ErrOutOfBounds = errors.New("quadtree: point outside world bounds")

// Point is anything with a geographic position. Its coordinates must not
// change while it is stored in a Tree.
type Point interface {
	Latitude() float64
	Longitude() float64
}

// Options configures a Tree. Non-positive values are replaced by defaults.
type Options struct {
	BucketCapacity int
	MaxDepth       int
}

// Tree indexes points of type T. It is not safe for concurrent mutation.
type Tree[T Point] struct {
	opts Options
	root *node[T]
	size int
}

// node is a leaf while children is nil; otherwise it is internal and holds
// no points.
type node[T Point] struct {
	bounds   Rect
	depth    int
	points   []T
	children *[4]*node[T]
}

// New creates an empty tree covering World.
func New[T Point](opts Options) *Tree[T] {
	if opts.BucketCapacity <= 0 {
		opts.BucketCapacity = DefaultBucketCapacity
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	t := &Tree[T]{opts: opts}
	t.Clear()
	return t
}

// Options returns the options the tree was built with, defaults filled in.
func (t *Tree[T]) Options() Options {
	return t.opts
}

// Insert adds p to the tree. Points outside World, NaN coordinates included,
// are rejected with ErrOutOfBounds.
func (t *Tree[T]) Insert(p T) error {
	lat, lon := p.Latitude(), p.Longitude()
	if !t.root.insert(p, lat, lon, &t.opts) {
		return fmt.Errorf("%w: (%v, %v)", ErrOutOfBounds, lat, lon)
	}
	t.size++
	return nil
}

// QueryRange returns every point inside r. The order is stable for a given
// tree state: quadrants NW, NE, SW, SE and insertion order within a leaf.
func (t *Tree[T]) QueryRange(r Rect) []T {
	var points []T
	t.root.search(r, func(p T) bool {
		points = append(points, p)
		return true
	})
	return points
}

// Search calls fn for each point inside r, in QueryRange order, until fn
// returns false.
func (t *Tree[T]) Search(r Rect, fn func(p T) bool) {
	t.root.search(r, fn)
}

// Clear drops every point and resets the root to World.
func (t *Tree[T]) Clear() {
	t.root = &node[T]{
		bounds: World,
		points: make([]T, 0, t.opts.BucketCapacity),
	}
	t.size = 0
}

// Len returns the number of stored points.
func (t *Tree[T]) Len() int {
	return t.size
}

// Depth returns the depth of the deepest node; an empty tree has depth 0.
func (t *Tree[T]) Depth() int {
	return t.root.maxDepth()
}

func (n *node[T]) insert(p T, lat, lon float64, opts *Options) bool {
	if !n.bounds.Contains(lat, lon) {
		return false
	}

	if n.children == nil {
		if len(n.points) < opts.BucketCapacity || n.depth >= opts.MaxDepth {
			n.points = append(n.points, p)
			return true
		}
		n.subdivide(opts)
	}

	for _, child := range n.children {
		if child.insert(p, lat, lon, opts) {
			return true
		}
	}

	// Unreachable: the quadrants cover the parent bounds.
	return false
}

// subdivide turns a full leaf into an internal node and pushes its points
// down into the quadrants.
func (n *node[T]) subdivide(opts *Options) {
	var children [4]*node[T]
	for i, bounds := range n.bounds.quarter() {
		children[i] = &node[T]{
			bounds: bounds,
			depth:  n.depth + 1,
			points: make([]T, 0, opts.BucketCapacity),
		}
	}
	n.children = &children

	points := n.points
	n.points = nil
	for _, p := range points {
		lat, lon := p.Latitude(), p.Longitude()
		for _, child := range n.children {
			if child.insert(p, lat, lon, opts) {
				break
			}
		}
	}
}

func (n *node[T]) search(r Rect, fn func(p T) bool) bool {
	if !n.bounds.Intersects(r) {
		return true
	}

	if n.children == nil {
		for _, p := range n.points {
			if r.Contains(p.Latitude(), p.Longitude()) && !fn(p) {
				return false
			}
		}
		return true
	}

	for _, child := range n.children {
		if !child.search(r, fn) {
			return false
		}
	}
	return true
}

func (n *node[T]) maxDepth() int {
	if n.children == nil {
		return n.depth
	}
	deepest := n.depth
	for _, child := range n.children {
		if d := child.maxDepth(); d > deepest {
			deepest = d
		}
	}
	return deepest
}
