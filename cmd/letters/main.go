package main

import (
	"context"
	"fmt"
	"os"

	"github.com/1F47E/geo-letters/pkg/config"
	"github.com/1F47E/geo-letters/pkg/logging"
	"github.com/1F47E/geo-letters/pkg/store"
	"github.com/1F47E/geo-letters/pkg/store/memory"
	"github.com/1F47E/geo-letters/pkg/store/mongo"
	"github.com/1F47E/geo-letters/pkg/store/postgis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "letters",
	Short:        "Geo letters service",
	Long:         `Post short letters pinned to a location and find the ones nearby.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(serveCmd, seedCmd, nearbyCmd, benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.App.Env, level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		return mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
	case config.StorePostGIS:
		return postgis.Open(ctx, cfg.PostGIS.DSN, logger)
	default:
		opts := []memory.Option{memory.WithSnapshot(cfg.Store.SnapshotPath)}
		if cfg.Store.Partitions > 0 {
			opts = append(opts, memory.WithPartitions(cfg.Store.Partitions))
		}
		return memory.New(logger, opts...)
	}
}
