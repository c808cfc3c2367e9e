package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/batchfetch/internal/service/maintenance"
	"github.com/vertextoedge/batchfetch/internal/service/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only task status over HTTP and run ledger maintenance",
		Long: `Starts an HTTP server with:
  GET /health                 database health
  GET /api/tasks              task list (?status=running,paused_for_rotation)
  GET /api/tasks/{id}         task status with per-batch progress
  GET /api/tasks/{id}/verify  ledger vs disk comparison

It also resets ledger records left downloading by a crashed process and
removes abandoned partial files from the download root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				cfg := a.cfg
				if addr != "" {
					cfg.HTTP.BindAddr = addr
				}

				maint := maintenance.New(&maintenance.Config{
					DownloadRoot:       cfg.Download.RootDir,
					StaleCheckInterval: cfg.Maintenance.GetStaleCheckInterval(),
					StaleRecordTimeout: cfg.Maintenance.GetStaleRecordTimeout(),
					CleanupInterval:    cfg.Maintenance.GetCleanupInterval(),
					TempFileMaxAge:     cfg.Maintenance.GetTempFileMaxAge(),
				}, a.store, a.fs, a.logger.Named("maintenance"))

				httpServer := server.New(&server.Config{
					BindAddr:     cfg.HTTP.BindAddr,
					Username:     cfg.HTTP.Username,
					Password:     cfg.HTTP.Password,
					ReadTimeout:  cfg.HTTP.GetReadTimeout(),
					WriteTimeout: cfg.HTTP.GetWriteTimeout(),
					IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
				}, a.manager, a.store, a.logger.Named("http"))

				g, ctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error {
					return maint.Start(ctx)
				})
				g.Go(func() error {
					return httpServer.Start()
				})
				g.Go(func() error {
					<-ctx.Done()
					maint.Stop()

					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := httpServer.Stop(shutdownCtx); err != nil {
						a.logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
					}
					return nil
				})

				p.Linef("Serving task status on http://%s", cfg.HTTP.BindAddr)
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config http.bind_addr)")
	return cmd
}
