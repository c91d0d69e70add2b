package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/classroom-exchange/internal/api"
	"github.com/atmx/classroom-exchange/internal/orders"
	"github.com/atmx/classroom-exchange/internal/store"
	"github.com/atmx/classroom-exchange/internal/tick"
)

func serveCmd() *cobra.Command {
	var noTick bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run ticks on a schedule",
		Long: `serve starts the HTTP and WebSocket API. Unless --no-tick is set it
also advances the market every server.tick_interval, executing the orders
queued through the API since the previous tick. A zero interval disables
scheduled ticks, and with them order submission over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := openDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			parser, err := orders.NewParser(cfg.Market.Universe)
			if err != nil {
				return err
			}
			var (
				runner *tick.Runner
				queue  *tick.Queue
			)
			if !noTick && cfg.Server.TickInterval.Duration > 0 {
				if runner, err = d.newRunner(); err != nil {
					return err
				}
				queue = &tick.Queue{}
			}

			hub := api.NewWSHub(api.OriginChecker(cfg.Server.CORSOrigins))
			svc := api.NewService(d.store, parser, queue, cfg.Paths.SiteDataDir, cfg.InitialCash(), hub)

			srv := &http.Server{
				Addr:         ":" + strconv.Itoa(cfg.Server.Port),
				Handler:      api.NewRouter(svc, hub, cfg.Server.CORSOrigins),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return hub.Run(ctx)
			})

			g.Go(func() error {
				slog.Info("exchange listening", "port", cfg.Server.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				slog.Info("shutting down exchange...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if runner != nil {
				g.Go(func() error {
					tickLoop(ctx, runner, queue, hub, cfg.Server.TickInterval.Duration)
					return nil
				})
			}

			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noTick, "no-tick", false, "Serve only; another process runs the ticks")
	return cmd
}

// tickLoop runs one tick per interval until ctx is done. A tick skipped
// because another process holds the lock, or one that failed before the
// market advanced, puts its orders back in the queue. Any later failure drops
// the tick's orders, since some of them may already have filled; they are
// logged and the loop keeps going.
func tickLoop(ctx context.Context, runner *tick.Runner, queue *tick.Queue, hub *api.WSHub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("tick loop started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			if n := queue.Len(); n > 0 {
				slog.Warn("orders left unexecuted at shutdown", "pending", n)
			}
			return
		case <-ticker.C:
		}

		pending := queue.Drain()
		res, err := runner.Run(ctx, pending)
		switch {
		case errors.Is(err, store.ErrLockHeld):
			queue.Requeue(pending)
			slog.Info("tick skipped, lock held elsewhere", "pending", len(pending))
		case errors.Is(err, tick.ErrNotExecuted):
			queue.Requeue(pending)
			slog.Error("tick failed before execution, orders requeued", "err", err, "pending", len(pending))
		case err != nil:
			slog.Error("tick failed, orders dropped", "err", err, "orders", len(pending))
		default:
			hub.BroadcastTick(res)
		}
	}
}
