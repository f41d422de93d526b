package quadtree

import (
	"math"

	"github.com/paulmach/orb"
)

// World covers every valid coordinate.
var World = Rect{North: 90, West: -180, South: -90, East: 180}

// Rect is an axis-aligned box in degrees. All four edges are inclusive.
type Rect struct {
	North float64 `json:"north"`
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
}

// Contains reports whether the coordinate lies inside r, edges included.
func (r Rect) Contains(lat, lon float64) bool {
	return lon >= r.West && lon <= r.East && lat <= r.North && lat >= r.South
}

// Intersects reports whether r and o overlap, touching edges included.
func (r Rect) Intersects(o Rect) bool {
	return r.West <= o.East && r.East >= o.West && r.North >= o.South && r.South <= o.North
}

// Valid reports whether r is a usable range: finite, north of south and
// east of west.
func (r Rect) Valid() bool {
	for _, v := range [4]float64{r.North, r.West, r.South, r.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.North >= r.South && r.East >= r.West
}

// Bound converts r to an orb.Bound (X is longitude, Y latitude).
func (r Rect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.West, r.South},
		Max: orb.Point{r.East, r.North},
	}
}

// FromBound converts an orb.Bound back to a Rect.
func FromBound(b orb.Bound) Rect {
	return Rect{North: b.Max.Lat(), West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon()}
}

// quarter splits r at the exact midpoint of each axis, in NW, NE, SW, SE
// order.
func (r Rect) quarter() [4]Rect {
	midLat := r.North - (r.North-r.South)/2
	midLon := r.East - (r.East-r.West)/2

	return [4]Rect{
		{North: r.North, West: r.West, South: midLat, East: midLon},
		{North: r.North, West: midLon, South: midLat, East: r.East},
		{North: midLat, West: r.West, South: r.South, East: midLon},
		{North: midLat, West: midLon, South: r.South, East: r.East},
	}
}
