package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/blob"
	"github.com/nvandessel/labkit/internal/config"
	"github.com/nvandessel/labkit/internal/experiment"
	"github.com/nvandessel/labkit/internal/library"
	"github.com/nvandessel/labkit/internal/logging"
	"github.com/nvandessel/labkit/internal/metrics"
	"github.com/nvandessel/labkit/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app is the wiring shared by every command that touches experiments.
type app struct {
	root    string
	cfg     *config.LabkitConfig
	logger  *slog.Logger
	events  *logging.EventLog
	metrics *metrics.Metrics
	lib     *library.Library
	wb      *experiment.Workbench
}

// rootDir returns --root, or ~/.labkit when it is empty.
func rootDir(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	if root != "" {
		return root, nil
	}
	return config.DefaultRoot()
}

// loadConfig reads, resolves and validates the configuration under root.
func loadConfig(root string) (*config.LabkitConfig, error) {
	cfg, err := config.LoadFrom(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Resolve(root)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openIndex(ctx context.Context, cfg config.StorageConfig) (library.Index, error) {
	switch cfg.Driver {
	case "memory":
		return library.NewMemoryIndex(), nil
	case "postgres":
		return library.OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return library.OpenSQLite(ctx, cfg.SQLitePath)
	}
}

// openApp builds the library and workbench described by the configuration.
func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	root, err := rootDir(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	m := metrics.New(prometheus.NewRegistry())

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.Root,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive storage: %w", err)
	}
	index, err := openIndex(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open experiment index: %w", err)
	}
	retention, err := library.NewRetention(cfg.Archive.KeepVersions, cfg.Archive.MaxAge)
	if err != nil {
		index.Close()
		return nil, err
	}
	format, err := archive.ParseFormat(cfg.Archive.Format)
	if err != nil {
		index.Close()
		return nil, err
	}

	lib := library.New(index, blobs, library.Options{
		Format:    format,
		Retention: retention,
		Metrics:   m,
		Logger:    logger,
		Retry:     ratelimit.DefaultBackoff,
	})
	events := logging.NewEventLog(root, cfg.Logging.Level)
	wb := experiment.NewWorkbench(lib,
		experiment.WithSingleDocument(cfg.Workbench.SingleDocument),
		experiment.WithMetrics(m),
		experiment.WithLogger(logger),
		experiment.WithEventLog(events),
	)

	logger.Debug("labkit opened", "root", root, "storage", cfg.Storage.String(), "blob", cfg.Blob.Driver)
	return &app{root: root, cfg: cfg, logger: logger, events: events, metrics: m, lib: lib, wb: wb}, nil
}

// Close releases the index and the event journal.
func (a *app) Close() error {
	err := a.lib.Close()
	a.events.Close()
	return err
}

// edit opens name, applies fn and closes it with save. When fn fails the
// experiment is closed without saving.
func (a *app) edit(ctx context.Context, name string, fn func(e *experiment.Experiment) error) error {
	e, err := a.wb.Open(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(e); err != nil {
		return errors.Join(err, a.wb.Close(ctx, e, false))
	}
	return a.wb.Close(ctx, e, true)
}
