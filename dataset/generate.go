package dataset

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"web/mapcluster/quadtree"
)

var categories = []string{"A", "B", "C"}

// Generate returns n random items uniformly spread over bounds. The same seed
// always yields the same items, IDs included.
func Generate(n int, bounds quadtree.Rect, seed int64) []*Item {
	r := rand.New(rand.NewSource(seed))
	items := make([]*Item, n)

	for i := range items {
		id, err := uuid.NewRandomFromReader(r)
		if err != nil {
			// rand.Rand never fails to read.
			panic(err)
		}

		items[i] = &Item{
			ID:      id,
			Lat:     bounds.South + r.Float64()*(bounds.North-bounds.South),
			Lon:     bounds.West + r.Float64()*(bounds.East-bounds.West),
			Title:   fmt.Sprintf("Item %d", i+1),
			Snippet: fmt.Sprintf("Generated item %d of %d", i+1, n),
			Metrics: map[string]float32{
				"value":     r.Float32() * 100,
				"sales":     r.Float32() * 1000,
				"customers": float32(r.Intn(100)),
			},
			Metadata: map[string]any{
				"category": categories[r.Intn(len(categories))],
			},
		}
	}

	return items
}
