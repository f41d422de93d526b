package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"web/mapcluster/cluster"
	"web/mapcluster/dataset"
	"web/mapcluster/quadtree"
)

var (
	cpuprofile     = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile     = flag.String("memprofile", "", "write memory profile to file")
	heapprofile    = flag.String("heapprofile", "", "write heap profile to file")
	numPoints      = flag.Int("points", 100000, "number of points to generate")
	zoomLevel      = flag.Float64("zoom", 8, "zoom level to profile")
	bucketCapacity = flag.Int("bucket-capacity", quadtree.DefaultBucketCapacity, "quadtree leaf capacity")
	testall        = flag.Bool("testall", false, "test all configurations")
)

// unitedStates is the region the generated points are spread over.
var unitedStates = quadtree.Rect{North: 49, West: -125, South: 25, East: -65}

// california is the region range searches are timed over.
var california = quadtree.Rect{North: 42, West: -124.4, South: 32.5, East: -114.1}

type result struct {
	buildDuration   time.Duration
	clusterDuration time.Duration
	searchDuration  time.Duration
	clusters        int
	visible         int
	depth           int
	allocMB         float64
	gcRuns          uint32
}

func profile(items []*dataset.Item, zoom float64, capacity int) (result, error) {
	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	start := time.Now()
	tree := quadtree.New[*dataset.Item](quadtree.Options{BucketCapacity: capacity})
	for _, item := range items {
		if err := tree.Insert(item); err != nil {
			return result{}, err
		}
	}
	buildDuration := time.Since(start)

	start = time.Now()
	clusters, err := cluster.New[*dataset.Item](tree).Clusters(context.Background(), unitedStates, zoom)
	if err != nil {
		return result{}, err
	}
	clusterDuration := time.Since(start)

	start = time.Now()
	visible := 0
	tree.Search(california, func(*dataset.Item) bool {
		visible++
		return true
	})
	searchDuration := time.Since(start)

	runtime.ReadMemStats(&memStatsAfter)

	return result{
		buildDuration:   buildDuration,
		clusterDuration: clusterDuration,
		searchDuration:  searchDuration,
		clusters:        len(clusters),
		visible:         visible,
		depth:           tree.Depth(),
		allocMB:         float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024,
		gcRuns:          memStatsAfter.NumGC - memStatsBefore.NumGC,
	}, nil
}

func runSingleProfile(numPoints int, zoomLevel float64) error {
	fmt.Printf("Profiling with %d points at zoom level %v\n", numPoints, zoomLevel)

	items := dataset.Generate(numPoints, unitedStates, 42)

	res, err := profile(items, zoomLevel, *bucketCapacity)
	if err != nil {
		return err
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Printf("Index built in %v (depth %d)\n", res.buildDuration, res.depth)
	fmt.Printf("Clustering completed in %v (%d clusters)\n", res.clusterDuration, res.clusters)
	fmt.Printf("Range search completed in %v (%d points in California)\n", res.searchDuration, res.visible)
	fmt.Printf("Memory allocated: %.2f MB\n", res.allocMB)
	fmt.Printf("Memory usage: %.2f MB\n", float64(memStats.Alloc)/1024/1024)
	return nil
}

func runProfileBattery() error {
	pointCounts := []int{1000, 10000, 50000, 100000}
	zoomLevels := []float64{2, 5, 8, 10}
	capacities := []int{4, 16, 64}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	fmt.Printf("%-10s | %-6s | %-8s | %-15s | %-15s | %-8s | %-11s | %-7s\n",
		"Points", "Zoom", "Capacity", "Build", "Cluster", "Clusters", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "------------------------------------------------------------------------------------------------")

	for _, points := range pointCounts {
		items := dataset.Generate(points, unitedStates, 42)

		for _, zoom := range zoomLevels {
			for _, capacity := range capacities {
				res, err := profile(items, zoom, capacity)
				if err != nil {
					return err
				}

				fmt.Printf("%-10d | %-6v | %-8d | %-15s | %-15s | %-8d | %-11.2f | %-7d\n",
					points, zoom, capacity, res.buildDuration, res.clusterDuration, res.clusters, res.allocMB, res.gcRuns)
			}
		}

		fmt.Printf("%s\n", "------------------------------------------------------------------------------------------------")
	}
	return nil
}

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	if *testall {
		err = runProfileBattery()
	} else {
		err = runSingleProfile(*numPoints, *zoomLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Profiling failed: %v\n", err)
		return
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	// Write heap profile if requested
	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		memProfile := pprof.Lookup("heap")
		if memProfile == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}

		if err := memProfile.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
