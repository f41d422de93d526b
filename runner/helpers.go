package runner

import (
	"web/mapcluster/cluster"
	"web/mapcluster/dataset"
)

// Marker is the JSON form of a cluster sent to map clients.
type Marker struct {
	Key       string     `json:"key"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
	Count     int        `json:"count"`
	Bounds    [4]float64 `json:"bounds"` // north, west, south, east
	Title     string     `json:"title,omitempty"`
}

type AddedMarker struct {
	Marker
	GrewFrom string `json:"grewFrom,omitempty"`
}

type RemovedMarker struct {
	Marker
	MergedInto string `json:"mergedInto,omitempty"`
}

// Update is one rendered reconciliation. Seq increases by one per render
// within a session.
type Update struct {
	Seq     uint64          `json:"seq"`
	Added   []AddedMarker   `json:"added"`
	Removed []RemovedMarker `json:"removed"`
}

// convertCluster converts a cluster to its client marker
func convertCluster(c *cluster.Cluster[*dataset.Item]) Marker {
	m := Marker{
		Key:       c.Key().String(),
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Count:     c.Count(),
		Bounds:    [4]float64{c.Bounds.North, c.Bounds.West, c.Bounds.South, c.Bounds.East},
	}
	if c.Count() == 1 {
		m.Title = c.Items[0].Title
	}
	return m
}

// convertReconciliation converts a reconciliation to an update, replacing
// cluster links with marker keys
func convertReconciliation(seq uint64, r cluster.Reconciliation[*dataset.Item]) Update {
	u := Update{
		Seq:     seq,
		Added:   make([]AddedMarker, 0, len(r.Added)),
		Removed: make([]RemovedMarker, 0, len(r.Removed)),
	}

	for _, a := range r.Added {
		added := AddedMarker{Marker: convertCluster(a.Cluster)}
		if a.GrewFrom != nil {
			added.GrewFrom = a.GrewFrom.Key().String()
		}
		u.Added = append(u.Added, added)
	}

	for _, rm := range r.Removed {
		removed := RemovedMarker{Marker: convertCluster(rm.Cluster)}
		if rm.MergedInto != nil {
			removed.MergedInto = rm.MergedInto.Key().String()
		}
		u.Removed = append(u.Removed, removed)
	}

	return u
}
