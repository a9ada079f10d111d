package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/query"
	"github.com/1F47E/geo-letters/pkg/store/memory"
	"github.com/spf13/cobra"
)

var (
	nearbyLat     string
	nearbyLng     string
	nearbyRadius  string
	nearbyLimit   string
	nearbyNearest int
	nearbyJSON    bool
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Find public letters around a point",
	Long: `Run a proximity query against the configured store. Radius and limit
follow the API rules: invalid values fall back to the defaults and the
limit is capped at 100.`,
	RunE: runNearby,
}

func init() {
	nearbyCmd.Flags().StringVar(&nearbyLat, "lat", "", "Center latitude (required)")
	nearbyCmd.Flags().StringVar(&nearbyLng, "lng", "", "Center longitude (required)")
	nearbyCmd.Flags().StringVarP(&nearbyRadius, "radius", "r", strconv.Itoa(query.DefaultRadiusMeters), "Radius in meters")
	nearbyCmd.Flags().StringVarP(&nearbyLimit, "limit", "l", strconv.Itoa(query.DefaultLimit), "Maximum results")
	nearbyCmd.Flags().IntVarP(&nearbyNearest, "nearest", "k", 0, "Ignore the radius and return the k nearest letters (memory store only)")
	nearbyCmd.Flags().BoolVar(&nearbyJSON, "json", false, "Print JSON")
	_ = nearbyCmd.MarkFlagRequired("lat")
	_ = nearbyCmd.MarkFlagRequired("lng")
}

func runNearby(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	params, err := query.ParseParams(query.RawParams{
		Lat:    nearbyLat,
		Lng:    nearbyLng,
		Radius: nearbyRadius,
		Limit:  nearbyLimit,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer st.Close(context.Background())

	var (
		results []models.NearbyLetter
		message string
	)
	if nearbyNearest > 0 {
		ms, ok := st.(*memory.Store)
		if !ok {
			return fmt.Errorf("--nearest needs the memory store, have %s", cfg.Store.Driver)
		}
		results = ms.NearestNeighbors(params.Center, nearbyNearest)
		message = fmt.Sprintf("Found %d nearest letters", len(results))
	} else {
		res, err := query.NewEngine(st, logger).Nearby(ctx, params)
		if err != nil {
			return err
		}
		results, message = res.Letters, res.Message()
	}

	if nearbyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Println(message)
	if len(results) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDISTANCE\tVISIBILITY\tCREATED\tCONTENT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.1fm\t%s\t%s\t%s\n",
			r.ID, r.DistanceMeters, r.Visibility, r.CreatedAt.Format("2006-01-02 15:04"), r.Content)
	}
	return w.Flush()
}
