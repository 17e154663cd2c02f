package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	importhandler "github.com/FACorreiaa/statement-import/internal/domain/import/handler"
	"github.com/FACorreiaa/statement-import/pkg/cron"
)

const (
	shutdownTimeout    = 15 * time.Second
	inboxSweepTimeout  = 10 * time.Minute
	sessionSweepSpec   = "*/5 * * * *"
	sessionSweepJob    = "session-sweep"
	inboxSweepJob      = "inbox-sweep"
	readHeaderTimeout  = 10 * time.Second
	healthCheckTimeout = 2 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the import HTTP API and the inbox sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := InitDependencies(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			scheduler, err := newScheduler(deps)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer func() { <-scheduler.Stop().Done() }()

			mux := http.NewServeMux()
			deps.ImportHandler.Register(mux)
			mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
				pingCtx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
				defer cancel()
				status, code := "healthy", http.StatusOK
				if err := deps.DB.Pool.Ping(pingCtx); err != nil {
					status, code = "unhealthy", http.StatusServiceUnavailable
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status": status,
					"time":   time.Now().Format(time.RFC3339),
				})
			})

			servers := []*http.Server{{
				Addr:    cfg.Server.Addr(),
				Handler: importhandler.Wrap(mux, importhandler.Options{
					AllowedOrigins:     cfg.Server.AllowedOrigins,
					RateLimitPerSecond: float64(cfg.Server.RateLimitPerSecond),
					RateLimitBurst:     cfg.Server.RateLimitBurst,
				}, deps.Metrics, logger),
				ReadHeaderTimeout: readHeaderTimeout,
			}}
			if cfg.Observability.MetricsEnabled {
				metricsMux := http.NewServeMux()
				metricsMux.Handle("GET /metrics", deps.Metrics.Handler())
				servers = append(servers, &http.Server{
					Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Observability.MetricsPort)),
					Handler:           metricsMux,
					ReadHeaderTimeout: readHeaderTimeout,
				})
			}

			errCh := make(chan error, len(servers))
			for _, srv := range servers {
				go func() {
					logger.Info("http server listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
					}
				}()
			}

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case serveErr = <-errCh:
				logger.Error("server failed", "error", serveErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			for _, srv := range servers {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown failed", "addr", srv.Addr, "error", err)
				}
			}
			return serveErr
		},
	}
}

// newScheduler registers the background jobs: expiring abandoned preview
// sessions and, when enabled, sweeping the statement inbox.
func newScheduler(deps *Dependencies) (*cron.Scheduler, error) {
	scheduler := cron.NewScheduler(deps.Logger)

	err := scheduler.Add(sessionSweepJob, sessionSweepSpec, 0, func(context.Context) error {
		if n := deps.Sessions.Sweep(); n > 0 {
			deps.Logger.Info("expired import sessions removed", "count", n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if deps.Sweeper != nil {
		err = scheduler.Add(inboxSweepJob, deps.Config.Inbox.Schedule, inboxSweepTimeout, func(ctx context.Context) error {
			_, err := deps.Sweeper.Sweep(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
