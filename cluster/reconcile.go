package cluster

import "web/mapcluster/quadtree"

// Addition is a cluster that was not in the previous set.
type Addition[T quadtree.Point] struct {
	Cluster *Cluster[T]

	// GrewFrom is the removed cluster whose tile contains this cluster's
	// centroid, or nil. A renderer animates the new marker out of it.
	GrewFrom *Cluster[T]
}

// Removal is a cluster that is not in the new set.
type Removal[T quadtree.Point] struct {
	Cluster *Cluster[T]

	// MergedInto is the new cluster whose tile contains this cluster's
	// centroid, or nil. A renderer animates the old marker into it.
	MergedInto *Cluster[T]
}

// Reconciliation is the difference between two consecutive cluster sets.
type Reconciliation[T quadtree.Point] struct {
	Added   []Addition[T]
	Removed []Removal[T]

	// Kept holds the clusters present in both sets, as instances of the new
	// set. Their item lists may differ from the previous pass.
	Kept []*Cluster[T]
}

// Clusters returns the new cluster set: kept clusters followed by added ones.
func (r Reconciliation[T]) Clusters() []*Cluster[T] {
	clusters := make([]*Cluster[T], 0, len(r.Kept)+len(r.Added))
	clusters = append(clusters, r.Kept...)
	for _, a := range r.Added {
		clusters = append(clusters, a.Cluster)
	}
	return clusters
}

// Empty reports whether nothing was added or removed.
func (r Reconciliation[T]) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Reconcile diffs next against previous. Both are treated as sets keyed by
// Cluster.Key; later duplicates of a key are ignored. Links are searched in
// production order and the first containing tile wins.
func Reconcile[T quadtree.Point](previous, next []*Cluster[T]) Reconciliation[T] {
	previous = dedupe(previous)
	next = dedupe(next)

	previousKeys := keySet(previous)
	nextKeys := keySet(next)

	var r Reconciliation[T]
	for _, c := range next {
		if _, ok := previousKeys[c.Key()]; ok {
			r.Kept = append(r.Kept, c)
		} else {
			r.Added = append(r.Added, Addition[T]{Cluster: c})
		}
	}

	var removed []*Cluster[T]
	for _, c := range previous {
		if _, ok := nextKeys[c.Key()]; !ok {
			removed = append(removed, c)
		}
	}

	// A removed cluster merged into whichever new cluster's tile now holds
	// its centroid.
	for _, c := range removed {
		r.Removed = append(r.Removed, Removal[T]{
			Cluster:    c,
			MergedInto: findContaining(next, c.Latitude, c.Longitude),
		})
	}

	for i := range r.Added {
		c := r.Added[i].Cluster
		r.Added[i].GrewFrom = findContaining(removed, c.Latitude, c.Longitude)
	}

	return r
}

func findContaining[T quadtree.Point](clusters []*Cluster[T], lat, lon float64) *Cluster[T] {
	for _, c := range clusters {
		if c.Contains(lat, lon) {
			return c
		}
	}
	return nil
}

func keySet[T quadtree.Point](clusters []*Cluster[T]) map[Key]struct{} {
	keys := make(map[Key]struct{}, len(clusters))
	for _, c := range clusters {
		keys[c.Key()] = struct{}{}
	}
	return keys
}

func dedupe[T quadtree.Point](clusters []*Cluster[T]) []*Cluster[T] {
	seen := make(map[Key]struct{}, len(clusters))
	unique := clusters[:0:0]
	for _, c := range clusters {
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}
