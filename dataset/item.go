// Package dataset provides the concrete map item type and reads and writes
// item sets as zstd-compressed binary, memory-mapped binary or GeoJSON files.
package dataset

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"web/mapcluster/quadtree"
)

// Item is a map marker: a position plus display and aggregation data.
type Item struct {
	ID       uuid.UUID          `json:"id"`
	Lat      float64            `json:"lat"`
	Lon      float64            `json:"lon"`
	Title    string             `json:"title,omitempty"`
	Snippet  string             `json:"snippet,omitempty"`
	Metrics  map[string]float32 `json:"metrics,omitempty"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

func (it *Item) Latitude() float64  { return it.Lat }
func (it *Item) Longitude() float64 { return it.Lon }

// Label returns the marker title and snippet.
func (it *Item) Label() (title, snippet string) {
	return it.Title, it.Snippet
}

func (it *Item) Measurements() map[string]float32 {
	return it.Metrics
}

// Category returns the "category" metadata value when it is a string.
func (it *Item) Category() string {
	category, _ := it.Metadata["category"].(string)
	return category
}

// Extent returns the smallest rect holding every item. ok is false for an
// empty set.
func Extent(items []*Item) (extent quadtree.Rect, ok bool) {
	if len(items) == 0 {
		return quadtree.Rect{}, false
	}

	mp := make(orb.MultiPoint, len(items))
	for i, it := range items {
		mp[i] = orb.Point{it.Lon, it.Lat}
	}
	return quadtree.FromBound(mp.Bound()), true
}
