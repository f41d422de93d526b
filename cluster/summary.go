package cluster

import (
	"math"
	"sort"

	"web/mapcluster/quadtree"
)

// Measured is implemented by items that carry numeric metrics.
type Measured interface {
	Measurements() map[string]float32
}

// Categorized is implemented by items that belong to a named category.
type Categorized interface {
	Category() string
}

// Labeled is implemented by items with a marker title and snippet.
type Labeled interface {
	Label() (title, snippet string)
}

// Summary aggregates one cluster set.
type Summary struct {
	// TotalPoints sums the cluster counts. A point on a shared tile edge is
	// counted once for every tile containing it.
	TotalPoints     int                    `json:"totalPoints"`
	NumClusters     int                    `json:"numClusters"`
	NumSinglePoints int                    `json:"numSinglePoints"`
	MetricsSummary  map[string]MetricStats `json:"metricsSummary"`

	// Categories maps each category to its share of points, in percent.
	Categories map[string]float64 `json:"categories,omitempty"`
}

type MetricStats struct {
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
	Sum     float32 `json:"sum"`
	Average float32 `json:"average"`
}

// Summarize aggregates the items of a cluster set. Metric statistics and the
// category distribution only cover items implementing Measured and
// Categorized.
func Summarize[T quadtree.Point](clusters []*Cluster[T]) Summary {
	summary := Summary{
		MetricsSummary: make(map[string]MetricStats),
	}

	type accumulator struct {
		min, max, sum float32
		count         int
	}
	metrics := make(map[string]*accumulator)
	categories := make(map[string]int)
	categorized := 0

	for _, c := range clusters {
		if c.Count() > 1 {
			summary.NumClusters++
		} else {
			summary.NumSinglePoints++
		}
		summary.TotalPoints += c.Count()

		for _, item := range c.Items {
			if m, ok := any(item).(Measured); ok {
				for name, value := range m.Measurements() {
					acc, exists := metrics[name]
					if !exists {
						acc = &accumulator{min: math.MaxFloat32, max: -math.MaxFloat32}
						metrics[name] = acc
					}
					acc.min = min(acc.min, value)
					acc.max = max(acc.max, value)
					acc.sum += value
					acc.count++
				}
			}

			if cat, ok := any(item).(Categorized); ok && cat.Category() != "" {
				categories[cat.Category()]++
				categorized++
			}
		}
	}

	for name, acc := range metrics {
		summary.MetricsSummary[name] = MetricStats{
			Min:     acc.min,
			Max:     acc.max,
			Sum:     acc.sum,
			Average: acc.sum / float32(acc.count),
		}
	}

	if categorized > 0 {
		summary.Categories = make(map[string]float64, len(categories))
		for name, count := range categories {
			summary.Categories[name] = float64(count) / float64(categorized) * 100
		}
	}

	return summary
}

// TopCategories returns category names ordered by descending share, ties by
// name.
func (s Summary) TopCategories() []string {
	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Categories[names[i]] != s.Categories[names[j]] {
			return s.Categories[names[i]] > s.Categories[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
