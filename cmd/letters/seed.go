package main

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"github.com/1F47E/geo-letters/pkg/store/memory"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedCount        int
	seedWorkers      int
	seedSeed         int64
	seedLat          float64
	seedLng          float64
	seedSpreadKm     float64
	seedPrivateRatio float64
	seedWorld        bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert random letters into the configured store",
	Long:  `Generate random letters around a center (or across the world) and insert them into the configured store.`,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 1000, "Number of letters to generate")
	seedCmd.Flags().IntVarP(&seedWorkers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", time.Now().UnixNano(), "Random seed")
	seedCmd.Flags().Float64Var(&seedLat, "lat", 12.9716, "Center latitude")
	seedCmd.Flags().Float64Var(&seedLng, "lng", 77.5946, "Center longitude")
	seedCmd.Flags().Float64Var(&seedSpreadKm, "spread-km", 5, "Distance from center letters are spread over")
	seedCmd.Flags().Float64Var(&seedPrivateRatio, "private-ratio", 0.1, "Share of private letters")
	seedCmd.Flags().BoolVar(&seedWorld, "world", false, "Spread letters over populated regions worldwide")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer st.Close(context.Background())

	if _, err := models.NewGeoPoint(seedLng, seedLat); err != nil {
		return err
	}
	regions := []region{around(seedLat, seedLng, seedSpreadKm)}
	if seedWorld {
		regions = worldRegions
	}

	fmt.Printf("Generating %d letters with %d workers...\n", seedCount, seedWorkers)
	letters := generateLetters(seedCount, seedWorkers, seedSeed, regions, seedPrivateRatio)

	start := time.Now()
	inserted, err := insertLetters(ctx, st, letters, seedWorkers, logger)
	elapsed := time.Since(start)

	fmt.Printf("Inserted %d letters into %s store in %v\n", inserted, cfg.Store.Driver, elapsed)
	if elapsed > 0 {
		fmt.Printf("Letters per second: %.0f\n", float64(inserted)/elapsed.Seconds())
	}
	return err
}

// insertLetters bulk-loads the memory store and fans out single inserts
// to a worker pool for the others.
func insertLetters(ctx context.Context, st store.Store, letters []*models.Letter, workers int, logger *zap.Logger) (int64, error) {
	if ms, ok := st.(*memory.Store); ok {
		for _, l := range letters {
			l.ID = uuid.NewString()
		}
		if err := ms.IndexLetters(letters); err != nil {
			return 0, fmt.Errorf("bulk index: %w", err)
		}
		return int64(len(letters)), nil
	}

	if workers < 1 {
		workers = 1
	}

	var (
		inserted atomic.Int64
		failed   atomic.Int64
		wg       sync.WaitGroup
	)
	work := make(chan *models.Letter, workers)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for l := range work {
				if _, err := st.Insert(ctx, l); err != nil {
					failed.Add(1)
					logger.Warn("insert failed", zap.Error(err))
					continue
				}
				inserted.Add(1)
			}
		}()
	}

	for _, l := range letters {
		work <- l
	}
	close(work)
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return inserted.Load(), fmt.Errorf("%d inserts failed", n)
	}
	return inserted.Load(), nil
}
