package cluster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"web/mapcluster/quadtree"
)

// ToGeoJSON converts clusters to a FeatureCollection of points. Each feature
// carries the tile as its bbox and the properties "cluster" and
// "point_count"; single items that implement Labeled also carry "title" and
// "snippet".
func ToGeoJSON[T quadtree.Point](clusters []*Cluster[T]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, c := range clusters {
		f := geojson.NewFeature(orb.Point{c.Longitude, c.Latitude})
		f.BBox = geojson.NewBBox(c.Bounds.Bound())
		f.Properties["cluster"] = c.Count() > 1
		f.Properties["point_count"] = c.Count()

		if c.Count() == 1 {
			if l, ok := any(c.Items[0]).(Labeled); ok {
				title, snippet := l.Label()
				f.Properties["title"] = title
				f.Properties["snippet"] = snippet
			}
		}

		fc.Append(f)
	}

	return fc
}
