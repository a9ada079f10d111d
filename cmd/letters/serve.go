package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/1F47E/geo-letters/pkg/api"
	"github.com/1F47E/geo-letters/pkg/config"
	"github.com/1F47E/geo-letters/pkg/geocode"
	"github.com/1F47E/geo-letters/pkg/letters"
	"github.com/1F47E/geo-letters/pkg/media"
	"github.com/1F47E/geo-letters/pkg/query"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	limits := media.Limits{MaxFiles: cfg.Media.MaxFiles, MaxFileSize: cfg.Media.MaxFileSize}
	opts := api.Options{
		Production:      cfg.IsProduction(),
		RateLimitPerMin: cfg.App.RateLimitPerMin,
		Limits:          limits,
	}

	var storage media.Storage
	switch cfg.Media.Driver {
	case config.MediaS3:
		s3, err := media.NewS3(ctx, media.S3Config{
			Region:     cfg.AWS.Region,
			Bucket:     cfg.AWS.Bucket,
			Endpoint:   cfg.AWS.Endpoint,
			Prefix:     cfg.S3.Prefix,
			PublicRead: cfg.S3.PublicRead,
			BaseURL:    cfg.Media.PublicBaseURL,
			PresignTTL: cfg.PresignTTL,
		}, logger)
		if err != nil {
			return fmt.Errorf("init s3 media: %w", err)
		}
		storage = s3
		opts.Presigner = s3
	default:
		disk, err := media.NewDisk(cfg.Media.Dir, cfg.Media.PublicBaseURL, logger)
		if err != nil {
			return fmt.Errorf("init disk media: %w", err)
		}
		storage = disk
		opts.UploadsDir = disk.Dir()
	}

	var geocoder geocode.Geocoder = geocode.NewMapbox(geocode.MapboxConfig{
		Key:     cfg.Mapbox.Key,
		BaseURL: cfg.Mapbox.BaseURL,
		Timeout: cfg.GeocodeTimeout,
	}, logger)
	if cfg.Mapbox.Key == "" {
		logger.Info("mapbox key not set, place names disabled")
	}

	var cache *geocode.RedisCache
	if cfg.Redis.Addr != "" {
		cache = geocode.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.PlaceNameTTL)
		geocoder = geocode.NewCached(geocoder, cache, logger)
	}

	svc := letters.NewService(st, logger,
		letters.WithMedia(storage, limits),
		letters.WithPlaceNamer(geocode.NewPlaceNamer(geocoder, cfg.GeocodeTimeout, logger)),
	)
	server := api.New(svc, query.NewEngine(st, logger), opts, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(fmt.Sprintf(":%d", cfg.App.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	case sig := <-quit:
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := st.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	logger.Info("shutdown completed")
	return errors.Join(errs...)
}
