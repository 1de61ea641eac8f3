package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hydro-ingest/internal/adapter/archive"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/geo"
	httpadapter "github.com/couchcryptid/hydro-ingest/internal/adapter/http"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/hydroquebec"
	kafkaadapter "github.com/couchcryptid/hydro-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/mail"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/metadata"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/sqlite"
	"github.com/couchcryptid/hydro-ingest/internal/config"
	"github.com/couchcryptid/hydro-ingest/internal/observability"
	"github.com/couchcryptid/hydro-ingest/internal/pipeline"
)

var (
	rootCmd = &cobra.Command{
		Use:           "hqingest",
		Short:         "Collect Hydro-Québec open data into a local SQLite database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Select stations inside the boundary, write metadata and create the database",
		Args:  cobra.NoArgs,
		RunE:  cmdInit,
	}
	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Run one fetch, archive and persist cycle now",
		Args:  cobra.NoArgs,
		RunE:  cmdIngest,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run one cycle per day at SCHEDULE_AT with health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE:  cmdServe,
	}
	replayCmd = &cobra.Command{
		Use:   "replay [archive...]",
		Short: "Normalize and persist archived feed snapshots",
		RunE:  cmdReplay,
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Print an archived feed snapshot as indented JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdInspect,
	}

	boundaryPath string
	runNow       bool
	replayAll    bool
)

func init() {
	rootCmd.AddCommand(initCmd, ingestCmd, serveCmd, replayCmd, inspectCmd)
	initCmd.Flags().StringVar(&boundaryPath, "boundary", "", "GeoJSON study area (overrides BOUNDARY_PATH)")
	serveCmd.Flags().BoolVar(&runNow, "run-now", false, "run a cycle immediately before waiting for the schedule")
	replayCmd.Flags().BoolVar(&replayAll, "all", false, "replay every snapshot in ARCHIVE_DIR, oldest first")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *sqlite.Store
	archives  *archive.Manager
	publisher *kafkaadapter.Publisher
	orch      *pipeline.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    sqlite.NewStore(cfg.DatabasePath, logger),
		archives: archive.NewManager(cfg.ArchiveDir, cfg.ArchivePrefix),
	}

	stages := pipeline.Stages{
		Fetcher:  hydroquebec.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger),
		Archiver: a.archives,
		Metadata: metadata.File{Path: cfg.MetadataPath},
		Store:    a.store,
	}

	if cfg.AlertEnabled {
		stages.Notifier = mail.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.AlertFrom, cfg.AlertRecipients, logger)
		logger.Info("smtp alerting enabled", "recipients", len(cfg.AlertRecipients))
	} else {
		stages.Notifier = mail.NewLogNotifier(logger)
	}

	if cfg.KafkaEnabled() {
		a.publisher = kafkaadapter.NewPublisher(cfg, logger)
		stages.Publisher = a.publisher
		logger.Info("kafka publication enabled", "topic", cfg.KafkaTopic)
	}

	a.orch = pipeline.New(stages, pipeline.Settings{
		MaxAttempts:   cfg.RetryMaxAttempts,
		RetryInterval: cfg.RetryInterval,
	}, logger, metrics)

	return a, nil
}

func (a *app) close() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("kafka publisher close error", "error", err)
	}
}

func cmdInit(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	path := boundaryPath
	if path == "" {
		path = a.cfg.BoundaryPath
	}
	if path == "" {
		return errors.New("no boundary: set BOUNDARY_PATH or --boundary")
	}
	boundary, err := geo.LoadGeoJSON(path)
	if err != nil {
		return err
	}
	a.logger.Info("boundary loaded", "path", path, "polygons", boundary.Polygons())

	stations, err := a.orch.Initialize(cmd.Context(), boundary)
	if err != nil {
		return err
	}
	a.logger.Info("initialisation complete",
		"stations", len(stations),
		"metadata", a.cfg.MetadataPath,
		"database", a.cfg.DatabasePath,
	)
	return nil
}

func cmdIngest(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return a.orch.RunCycle(cmd.Context())
}

func cmdServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	at, err := a.cfg.DailyAt()
	if err != nil {
		return err
	}
	if err := a.store.Ping(cmd.Context()); err != nil {
		return err
	}

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.orch, a.logger)
	g, ctx := errgroup.WithContext(cmd.Context())

	// Start HTTP server.
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Start scheduler.
	g.Go(func() error {
		if runNow {
			if err := a.orch.RunCycle(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("ingestion cycle failed", "error", err)
			}
		}
		return a.orch.RunDaily(ctx, at)
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

func cmdReplay(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	paths := args
	if replayAll {
		if paths, err = a.archives.List(); err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		return errors.New("nothing to replay: pass archive files or --all")
	}

	for _, path := range paths {
		doc, err := archive.Restore(path)
		if err != nil {
			return err
		}
		a.logger.Info("replaying archive", "path", path, "stations", len(doc.Stations))
		if err := a.orch.Ingest(cmd.Context(), doc); err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
	}
	return nil
}

func cmdInspect(cmd *cobra.Command, args []string) error {
	doc, err := archive.Restore(args[0])
	if err != nil {
		return err
	}
	raw, err := doc.Raw()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("format archive: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(cmd.OutOrStdout())
	return err
}
