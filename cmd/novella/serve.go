package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/internal/cli"
	"github.com/aretw0/novella/internal/config"
	httpAdapter "github.com/aretw0/novella/pkg/adapters/http"
	"github.com/aretw0/novella/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Start the HTTP server",
	Long: `Serves the stories of a project over a JSON API (see /openapi.yaml), with
server-sent events for playthrough diffs and story reloads, and Prometheus
metrics on /metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("watch") {
			cfg.Watch, _ = cmd.Flags().GetBool("watch")
		}

		logger, level, err := cli.NewLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return err
		}
		hooks := metrics.Hooks().Merge(observability.LogHooks(logger))

		engine, err := cli.NewEngine(cfg, logger, hooks)
		if err != nil {
			return err
		}
		sessions, closeStore, err := cli.NewSessions(projectStore(cfg), logger)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		served := httpAdapter.Engine(engine)
		if cfg.Watch {
			hub, err := watchStories(ctx, engine)
			if err != nil {
				return err
			}
			served = hub
		}
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			watchConfig(ctx, path, logger, level)
		}

		handler, err := httpAdapter.NewServer(served, sessions,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithGatherer(reg),
		)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("novella server listening", "addr", srv.Addr, "stories", cfg.Stories, "watch", cfg.Watch)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
			logger.Info("novella server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload stories when their files change")
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings need one.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, level *slog.LevelVar) {
	err := config.Watch(ctx, path, logger, func(cfg *config.Config) {
		if err := cli.ApplyLevel(level, cfg); err != nil {
			logger.Warn("config reload ignored", "err", err)
			return
		}
		logger.Info("config reloaded", "log_level", cfg.LogLevel)
	})
	if err != nil {
		logger.Warn("config is not watched", "err", err)
	}
}

// reloadHub runs the single story watcher of the server and fans its
// events out to every client of the reload stream.
type reloadHub struct {
	*novella.Engine

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func watchStories(ctx context.Context, engine *novella.Engine) (*reloadHub, error) {
	changes, err := engine.Watch(ctx)
	if err != nil {
		return nil, err
	}
	h := &reloadHub{Engine: engine, subs: make(map[chan string]struct{})}
	go func() {
		for id := range changes {
			h.mu.Lock()
			for ch := range h.subs {
				select {
				case ch <- id:
				default:
				}
			}
			h.mu.Unlock()
		}
	}()
	return h, nil
}

// Watch subscribes to story reloads until ctx is done.
func (h *reloadHub) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}
