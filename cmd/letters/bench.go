package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/rtree"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	benchLetters    int
	benchQueries    int
	benchWorkers    int
	benchPartitions int
	benchType       string
	benchRadius     float64
	benchBoxSize    float64
	benchK          int
	benchSeed       int64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the in-memory spatial index",
	Long:  `Build an R-tree of random letters and run concurrent box, radius or nearest-neighbor queries against it.`,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchLetters, "letters", "n", 100000, "Number of letters to index")
	benchCmd.Flags().IntVarP(&benchQueries, "queries", "q", 1000, "Number of queries to run")
	benchCmd.Flags().IntVarP(&benchWorkers, "workers", "w", runtime.NumCPU(), "Number of concurrent workers")
	benchCmd.Flags().IntVarP(&benchPartitions, "partitions", "p", runtime.NumCPU(), "Number of R-tree partitions")
	benchCmd.Flags().StringVarP(&benchType, "type", "t", "radius", "Query type: box, radius, nearest, mixed")
	benchCmd.Flags().Float64VarP(&benchRadius, "radius", "r", 50000, "Radius in meters (radius queries)")
	benchCmd.Flags().Float64Var(&benchBoxSize, "box-size", 1.0, "Box size in degrees (box queries)")
	benchCmd.Flags().IntVar(&benchK, "k", 100, "Number of nearest neighbors")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", time.Now().UnixNano(), "Random seed")
}

type benchmarkResult struct {
	QueryType     string
	TotalQueries  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	QueriesPerSec float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	AvgResults    float64
}

// queryFunc runs one random query and reports how many results it found.
type queryFunc func(r *rand.Rand) (int, error)

func runBench(cmd *cobra.Command, args []string) error {
	if benchWorkers < 1 {
		benchWorkers = 1
	}
	if benchQueries < 1 {
		return fmt.Errorf("--queries must be positive")
	}

	fmt.Printf("Generating %d letters with %d workers...\n", benchLetters, benchWorkers)
	letters := generateLetters(benchLetters, benchWorkers, benchSeed, worldRegions, 0.1)
	for _, l := range letters {
		l.ID = uuid.NewString()
	}

	index := rtree.NewGeoIndexWithPartitions(benchPartitions)
	start := time.Now()
	if err := index.IndexLetters(letters); err != nil {
		return fmt.Errorf("index letters: %w", err)
	}
	indexTime := time.Since(start)
	fmt.Printf("Indexed %d letters in %v (%.0f letters/sec)\n",
		index.Count(), indexTime, float64(index.Count())/indexTime.Seconds())

	queries := map[string]queryFunc{
		"box":     boxQuery(index),
		"radius":  radiusQuery(index),
		"nearest": nearestQuery(index),
	}

	var results []benchmarkResult
	switch benchType {
	case "mixed":
		perType := max(benchQueries/3, 1)
		for _, name := range []string{"box", "radius", "nearest"} {
			results = append(results, runQueries(name, perType, benchWorkers, benchSeed, queries[name]))
		}
	default:
		fn, ok := queries[benchType]
		if !ok {
			return fmt.Errorf("unknown query type: %s", benchType)
		}
		results = append(results, runQueries(benchType, benchQueries, benchWorkers, benchSeed, fn))
	}

	fmt.Println("\n=== Benchmark Results ===")
	for _, res := range results {
		printResult(res)
	}
	fmt.Printf("Workers Used: %d\n", benchWorkers)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
	return nil
}

func randomCenter(r *rand.Rand) models.Location {
	lng, lat := worldRegions[r.Intn(len(worldRegions)-1)].random(r)
	return models.Location{Lat: lat, Lon: lng}
}

func boxQuery(index *rtree.GeoIndex) queryFunc {
	return func(r *rand.Rand) (int, error) {
		c := randomCenter(r)
		half := benchBoxSize / 2
		box := models.BoundingBox{
			BottomLeft: models.Location{Lat: max(c.Lat-half, -90), Lon: max(c.Lon-half, -180)},
			TopRight:   models.Location{Lat: min(c.Lat+half, 90), Lon: min(c.Lon+half, 180)},
		}
		res, err := index.QueryBox(box)
		return len(res), err
	}
}

func radiusQuery(index *rtree.GeoIndex) queryFunc {
	return func(r *rand.Rand) (int, error) {
		res, err := index.QueryRadius(randomCenter(r), benchRadius, nil)
		return len(res), err
	}
}

func nearestQuery(index *rtree.GeoIndex) queryFunc {
	return func(r *rand.Rand) (int, error) {
		return len(index.NearestNeighbors(randomCenter(r), benchK)), nil
	}
}

// runQueries feeds numQueries jobs to a pool of workers, each with its own
// random source, and aggregates the timings.
func runQueries(name string, numQueries, workers int, seed int64, fn queryFunc) benchmarkResult {
	var (
		totalResults atomic.Int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		totalDur     time.Duration
		completed    int
		mu           sync.Mutex
	)

	startTime := time.Now()

	queryCh := make(chan int, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(workerID)*7919))

			for range queryCh {
				queryStart := time.Now()
				n, err := fn(r)
				queryDuration := time.Since(queryStart)
				if err != nil {
					if verbose {
						fmt.Printf("Worker %d: %s query error: %v\n", workerID, name, err)
					}
					continue
				}
				totalResults.Add(int64(n))

				mu.Lock()
				completed++
				totalDur += queryDuration
				minDuration = min(minDuration, queryDuration)
				maxDuration = max(maxDuration, queryDuration)
				mu.Unlock()
			}
		}(w)
	}

	for i := 0; i < numQueries; i++ {
		queryCh <- i
	}
	close(queryCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	res := benchmarkResult{
		QueryType:     name,
		TotalQueries:  completed,
		TotalDuration: totalDuration,
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		TotalResults:  totalResults.Load(),
	}
	if completed > 0 {
		res.AvgDuration = totalDur / time.Duration(completed)
		res.QueriesPerSec = float64(completed) / totalDuration.Seconds()
		res.AvgResults = float64(res.TotalResults) / float64(completed)
	}
	return res
}

func printResult(res benchmarkResult) {
	fmt.Printf("Query Type: %s\n", res.QueryType)
	fmt.Printf("Total Queries: %d\n", res.TotalQueries)
	fmt.Printf("Total Duration: %v\n", res.TotalDuration)
	fmt.Printf("Average Duration: %v\n", res.AvgDuration)
	fmt.Printf("Queries/Second: %.2f\n", res.QueriesPerSec)
	fmt.Printf("Min Duration: %v\n", res.MinDuration)
	fmt.Printf("Max Duration: %v\n", res.MaxDuration)
	fmt.Printf("Total Results: %d\n", res.TotalResults)
	fmt.Printf("Avg Results/Query: %.2f\n\n", res.AvgResults)
}
