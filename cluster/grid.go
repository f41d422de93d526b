package cluster

import (
	"math"

	"web/mapcluster/quadtree"
)

// Grid is the fixed geographic tiling used at one zoom level. Tile (0, 0) is
// the north-west corner of the world; x grows eastwards, y southwards.
type Grid struct {
	TileCount int64
	StepLat   float64
	StepLon   float64
}

// GridAt returns the grid for zoom. The tile count per axis is
// floor(2^zoom * 2), so tiles halve in size with every zoom step.
func GridAt(zoom float64) Grid {
	zoom = math.Max(MinZoom, math.Min(MaxZoom, zoom))

	tileCount := int64(math.Floor(math.Pow(2, zoom) * 2))
	if tileCount < 1 {
		tileCount = 1
	}

	return Grid{
		TileCount: tileCount,
		StepLat:   180.0 / float64(tileCount),
		StepLon:   360.0 / float64(tileCount),
	}
}

// Tile returns the bounds of tile (x, y).
func (g Grid) Tile(x, y int64) quadtree.Rect {
	north := 90.0 - float64(y)*g.StepLat
	west := float64(x)*g.StepLon - 180.0

	return quadtree.Rect{
		North: north,
		West:  west,
		South: north - g.StepLat,
		East:  west + g.StepLon,
	}
}

// Cover returns the inclusive tile range covering viewport, which must not
// cross the antimeridian. The end indices are padded by one tile so that
// tiles only partly inside the viewport are included; the result is clamped
// to the grid.
func (g Grid) Cover(viewport quadtree.Rect) (startX, startY, endX, endY int64) {
	startX = g.column(viewport.West)
	endX = g.column(viewport.East) + 1
	startY = g.row(viewport.North)
	endY = g.row(viewport.South) + 1

	return g.clamp(startX), g.clamp(startY), g.clamp(endX), g.clamp(endY)
}

func (g Grid) column(lon float64) int64 {
	return int64(math.Floor((lon + 180.0) / g.StepLon))
}

func (g Grid) row(lat float64) int64 {
	return int64(math.Floor((90.0 - lat) / g.StepLat))
}

func (g Grid) clamp(i int64) int64 {
	return max(0, min(g.TileCount-1, i))
}

type span struct {
	start, end int64
}

// cover resolves the row range and the column spans for a viewport that may
// cross the antimeridian. Overlapping spans are merged so every tile is
// visited once.
func (g Grid) cover(viewport quadtree.Rect) (startY, endY int64, columns []span) {
	if viewport.West <= viewport.East {
		startX, startY, endX, endY := g.Cover(viewport)
		return startY, endY, []span{{startX, endX}}
	}

	east := viewport
	east.East = 180
	west := viewport
	west.West = -180

	eastStart, startY, eastEnd, endY := g.Cover(east)
	westStart, _, westEnd, _ := g.Cover(west)

	if westEnd+1 >= eastStart {
		return startY, endY, []span{{westStart, max(westEnd, eastEnd)}}
	}
	return startY, endY, []span{{westStart, westEnd}, {eastStart, eastEnd}}
}

// tileCount returns how many tiles a pass over viewport visits.
func (g Grid) tileCount(viewport quadtree.Rect) int64 {
	startY, endY, columns := g.cover(viewport)

	var perRow int64
	for _, span := range columns {
		perRow += span.end - span.start + 1
	}
	return perRow * (endY - startY + 1)
}
