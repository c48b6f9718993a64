package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"gwi.com/fleet-copilot/internal/catalog"
	"gwi.com/fleet-copilot/internal/config"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/metrics"
	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

// app holds the collaborators shared by every command.
type app struct {
	store    *store.SQLiteStore
	client   *telematics.Client
	tags     *catalog.TagCatalog
	vehicles *catalog.VehicleCatalog
	metrics  *metrics.Metrics
}

func newApp(c *config.Config, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	m, err := metrics.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	dbStore, err := store.NewSQLiteStore(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := telematics.NewClient(telematics.Options{
		BaseURL:           c.SamsaraBaseURL,
		Token:             c.SamsaraAPIToken,
		RequestsPerSecond: c.SamsaraRateLimit,
		Logger:            log,
	})

	cache, err := utils.NewLRUCache(256)
	if err != nil {
		dbStore.Close()
		return nil, err
	}
	opts := catalog.Options{Cache: cache, Logger: log, Observer: m}
	tags, err := catalog.NewTagCatalog(client, dbStore, opts)
	if err != nil {
		dbStore.Close()
		return nil, err
	}
	vehicles, err := catalog.NewVehicleCatalog(client, dbStore, opts)
	if err != nil {
		dbStore.Close()
		return nil, err
	}

	return &app{store: dbStore, client: client, tags: tags, vehicles: vehicles, metrics: m}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newBlobStore(ctx context.Context, c *config.Config) (media.BlobStore, error) {
	switch c.BlobBackend {
	case config.BlobS3:
		s3, err := media.NewS3Store(ctx, media.S3Options{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			PublicURL: c.BlobPublicURL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		fs, err := media.NewFSStore(c.BlobDir, c.BlobPublicURL)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}
