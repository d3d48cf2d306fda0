package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yangwenmai/amigo/internal/api"
	"github.com/yangwenmai/amigo/internal/config"
	"github.com/yangwenmai/amigo/internal/cortex"
	"github.com/yangwenmai/amigo/internal/engine"
	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/observability"
	"github.com/yangwenmai/amigo/internal/store"
	"github.com/yangwenmai/amigo/internal/worker"
)

var (
	cfgFile string
	version = "dev"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "amigo",
		Short:        "Amigo mission control server",
		Long:         `Runs the Cortex capture pipeline: intake, AI analysis, triage and hand-off to the agent task queue.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./amigo.yaml)")

	rootCmd.AddCommand(serveCmd(), migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the idle sweeper",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	if strings.HasPrefix(strings.ToLower(cfg.LogMode), "prod") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, log, observability.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, dialect, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	repo, err := store.New(ctx, db, dialect)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	defer blobs.close()

	tr, err := buildTranscriber(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init transcriber: %w", err)
	}
	defer tr.close()

	modelClient := buildModelClient(cfg)
	log.Info("model client selected", "llm_provider", cfg.LLMProvider, "transcribe_provider", cfg.TranscribeProvider, "blob_provider", cfg.BlobProvider)

	fetcher := engine.NewHTTPFetcher(cfg.LinkFetchTimeout, cfg.PageContextChars)
	dispatcher := engine.NewDispatcher(repo, modelClient, fetcher, log)
	tracker := cortex.NewTracker(cfg.MaxConcurrentAnalyses, cfg.JobRetention, log)
	svc := cortex.NewService(repo, blobs.Store, tr.Transcriber, dispatcher, tracker, log,
		cortex.WithMaxUpload(cfg.MaxUploadBytes))

	// Start worker in background.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	w := worker.New(repo, svc, cfg.SweepInterval, cfg.SweepGrace, log)
	go func() {
		w.Start(workerCtx)
		close(workerDone)
	}()

	srv := api.New(svc, log, api.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		FilesDir:       blobs.filesDir,
		Tracing:        cfg.OTelEnabled,
		ServiceName:    cfg.ServiceName,
		Health:         repo.Ping,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info("amigo server listening", "addr", "http://localhost:"+cfg.Port, "db_driver", cfg.DBDriver)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			cancelWorker()
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown: stop intake, then the sweeper, then drain analyses.
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	cancelWorker()
	<-workerDone
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		log.Warn("analysis jobs cancelled at shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, dialect store.Dialect) error {
					res, err := store.Migrate(ctx, db, dialect)
					for _, r := range res {
						fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s (%s)\n", r.Source.Version, r.Source.Path, r.Duration)
					}
					if err != nil {
						return err
					}
					if len(res) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB, dialect store.Dialect) error {
					statuses, err := store.MigrationStatus(ctx, db, dialect)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
					for _, st := range statuses {
						applied := "-"
						if !st.AppliedAt.IsZero() {
							applied = st.AppliedAt.UTC().Format(time.RFC3339)
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
					}
					return tw.Flush()
				})
			},
		},
	)
	return cmd
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB, store.Dialect) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, dialect, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	return fn(ctx, db, dialect)
}
