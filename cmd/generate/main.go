package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"web/mapcluster/dataset"
	"web/mapcluster/quadtree"
)

func main() {
	numPoints := flag.Int("n", 100000, "number of items to generate")
	dir := flag.String("dir", "data/datasets", "directory the dataset is written to")
	out := flag.String("out", "", "output file name; the extension selects the format (default: generated .zst name)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	boundsFlag := flag.String("bounds", "49,-125,25,-67", "north,west,south,east of the generated items")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	bounds, err := parseBounds(*boundsFlag)
	if err != nil {
		logger.Error("invalid bounds", "error", err)
		os.Exit(2)
	}

	if err := os.MkdirAll(*dir, 0755); err != nil {
		logger.Error("failed to create dataset directory", "error", err)
		os.Exit(1)
	}

	name := *out
	if name == "" {
		name = generateDatasetFilename(*numPoints)
	}
	path, err := dataset.Resolve(*dir, name)
	if err != nil {
		logger.Error("invalid output name", "error", err)
		os.Exit(2)
	}

	start := time.Now()
	items := dataset.Generate(*numPoints, bounds, *seed)
	logger.Info("items generated", "items", len(items), "duration", time.Since(start))

	start = time.Now()
	if err := dataset.Save(path, items); err != nil {
		logger.Error("failed to save dataset", "path", path, "error", err)
		os.Exit(1)
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error("failed to stat dataset", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("dataset saved", "path", path, "bytes", info.Size(), "duration", time.Since(start))

	fmt.Println(path)
}

func generateDatasetFilename(numPoints int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8] // Use first 8 chars of UUID for brevity
	return fmt.Sprintf("items-%dp-%s-%s.zst", numPoints, timestamp, id)
}

// parseBounds reads "north,west,south,east".
func parseBounds(s string) (quadtree.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return quadtree.Rect{}, fmt.Errorf("want 4 comma-separated values, got %d", len(parts))
	}

	var values [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return quadtree.Rect{}, fmt.Errorf("invalid value %q: %w", part, err)
		}
		values[i] = v
	}

	r := quadtree.Rect{North: values[0], West: values[1], South: values[2], East: values[3]}
	if !r.Valid() || !quadtree.World.Contains(r.North, r.West) || !quadtree.World.Contains(r.South, r.East) {
		return quadtree.Rect{}, fmt.Errorf("bounds outside the world or inverted: %q", s)
	}
	return r, nil
}
