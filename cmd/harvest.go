package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/api"
	"github.com/codefetch/harvester/internal/archive"
	"github.com/codefetch/harvester/internal/assets"
	"github.com/codefetch/harvester/internal/clock/system"
	"github.com/codefetch/harvester/internal/config"
	"github.com/codefetch/harvester/internal/fetch"
	"github.com/codefetch/harvester/internal/harvest"
	"github.com/codefetch/harvester/internal/logging"
	"github.com/codefetch/harvester/internal/progress"
	"github.com/codefetch/harvester/internal/progress/sinks"
	"github.com/codefetch/harvester/internal/sink"
	"github.com/codefetch/harvester/internal/source"
)

// newHarvestCmd creates and configures the 'harvest' subcommand, which runs
// the full pipeline: read identifiers, fetch in retry rounds, persist
// settled outcomes, and archive the artifact tree.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Fetches every identifier until it settles",
		Long: `Reads the input identifier list, fetches each activation page with
bounded concurrency, appends settled results to the summary file, retries
transient failures after a cooldown, and zips the extracted documents once
every identifier has a terminal outcome.`,
		RunE: runHarvestCommand,
	}
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ids, err := loadIDs(cfg, logger)
	if err != nil {
		return err
	}

	summary, err := sink.NewCSVSink(cfg.Output.SummaryPath, cfg.Fetch.PadWidth, logger.Named("sink"))
	if err != nil {
		return fmt.Errorf("init summary sink: %w", err)
	}
	defer func() {
		if cerr := summary.Close(); cerr != nil {
			logger.Warn("failed to close summary sink", zap.Error(cerr))
		}
	}()

	controller, hub, err := buildPipeline(cfg, summary, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close progress hub", zap.Error(cerr))
		}
	}()

	stopServer := startServer(cfg, controller, logger)
	defer stopServer()

	if err := controller.Run(ctx, ids); err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}

	if err := archive.Pack(cfg.Output.HTMLDir, cfg.Output.ArchivePath); err != nil {
		return fmt.Errorf("pack archive: %w", err)
	}
	logger.Info("archive created", zap.String("path", cfg.Output.ArchivePath))
	return nil
}

// loadIDs reads the input list and, when resume is enabled, drops
// identifiers the summary file already settled.
func loadIDs(cfg config.Config, logger *zap.Logger) ([]harvest.ID, error) {
	ids, err := source.ReadIDs(cfg.Input.Path, cfg.Input.IDColumn)
	if err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	logger.Info("identifiers loaded",
		zap.String("path", cfg.Input.Path),
		zap.Int("count", len(ids)),
	)

	if !cfg.Input.SkipSettled {
		return ids, nil
	}
	settled, err := sink.LoadSettledIDs(cfg.Output.SummaryPath)
	if err != nil {
		return nil, fmt.Errorf("load settled identifiers: %w", err)
	}
	if len(settled) == 0 {
		return ids, nil
	}
	remaining := ids[:0]
	for _, id := range ids {
		if _, ok := settled[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	logger.Info("skipping already settled identifiers",
		zap.Int("settled", len(ids)-len(remaining)),
		zap.Int("remaining", len(remaining)),
	)
	return remaining, nil
}

func buildPipeline(cfg config.Config, summary harvest.Sink, logger *zap.Logger) (*harvest.Controller, *progress.Hub, error) {
	artifacts, err := sink.NewArtifactSink(cfg.Output.HTMLDir, cfg.Output.MaxArtifactBytes, logger.Named("sink"))
	if err != nil {
		return nil, nil, fmt.Errorf("init artifact sink: %w", err)
	}
	cache, err := assets.New(
		filepath.Join(cfg.Output.HTMLDir, cfg.Output.AssetsSubdir),
		cfg.Output.AssetsSubdir,
		cfg.Fetch.UserAgent,
		cfg.Fetch.AssetTimeout,
		logger.Named("assets"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init asset cache: %w", err)
	}
	fetcher, err := fetch.New(fetch.Config{
		BaseURL:     cfg.Fetch.BaseURL,
		PadWidth:    cfg.Fetch.PadWidth,
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		Concurrency: cfg.Fetch.Concurrency,
	}, cache, artifacts, logger.Named("fetch"))
	if err != nil {
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{promSink}
	if cfg.Logging.Development {
		hubSinks = append(hubSinks, sinks.NewLogSink(logger.Named("progress")))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, hubSinks...)

	runID := progress.UUIDToBytes(uuid.New())
	clk := system.New()
	scheduler := harvest.NewScheduler(
		fetcher,
		cfg.Fetch.Concurrency,
		clk,
		hub,
		runID,
		logger.Named("scheduler"),
	)
	controller := harvest.NewController(
		scheduler,
		summary,
		clk,
		hub,
		harvest.ControllerConfig{
			Cooldown:    cfg.Retry.Cooldown,
			MaxAttempts: cfg.Retry.MaxAttempts,
			RunID:       runID,
		},
		logger.Named("controller"),
	)
	return controller, hub, nil
}

// startServer launches the observability listener when enabled and returns a
// function that shuts it down.
func startServer(cfg config.Config, controller *harvest.Controller, logger *zap.Logger) func() {
	if !cfg.Server.Enabled {
		return func() {}
	}
	server := api.NewServer(controller.Snapshot, promhttp.Handler(), logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("observability server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observability server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability server shutdown error", zap.Error(err))
		}
	}
}
