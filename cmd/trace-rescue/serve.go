package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trace-rescue/internal/api/handlers"
	"trace-rescue/internal/cleanup"
	"trace-rescue/internal/core/detection"
	"trace-rescue/internal/db"
	"trace-rescue/internal/db/repository"
	"trace-rescue/internal/jobs"
	"trace-rescue/internal/recognition"
	"trace-rescue/internal/server/sse"
)

var withJobs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report server that receives and serves detections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withJobs, "jobs", true, "Allow starting recognition jobs over the API")
	rootCmd.AddCommand(serveCmd)
}

func runServer(ctx context.Context) error {
	log.Info("Initializing database...")
	gdb, err := db.Open(cfg.DB.File)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close(gdb)
	repo := repository.NewSQLiteRepository(gdb)

	hub := sse.NewHub()
	go hub.Run(ctx)

	cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays, cfg.Server.FoundDir, cfg.Cleanup.Interval)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	var manager *jobs.Manager
	if withJobs {
		manager = jobs.NewManager(ctx, func(jobCtx context.Context) (detection.Result, error) {
			runCfg := *cfg
			return recognition.Run(jobCtx, &runCfg, recognition.Options{})
		})
		defer manager.Wait()
	}

	found, err := handlers.NewFoundHandler(repo, hub, cfg.Server.FoundDir, cfg.Server.PublicURL, cfg.Server.MaxUploadMiB)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot directory: %w", err)
	}

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(
		handlers.NewSystemHandler(repo, hub, manager),
		found,
		handlers.NewJobHandler(manager),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Report server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server shutdown incomplete")
	}
	log.Info("Server stopped")
	return nil
}
