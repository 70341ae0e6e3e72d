package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replydraft/internal/browser"
	"replydraft/internal/config"
	"replydraft/internal/drafts"
	"replydraft/internal/extract"
	"replydraft/internal/logging"
	"replydraft/internal/metrics"
	"replydraft/internal/observer"
	"replydraft/internal/pipeline"
	"replydraft/internal/presenter"
	"replydraft/internal/selectors"
	"replydraft/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Attach to the messaging tab and draft replies as threads change",
		Long: `Connects to Chrome (CHROME_DEBUGGER_URL, or a launched instance), opens or
re-attaches to the messaging tab, waits for the page to be ready and then
evaluates the open thread on every settled change.

The settings file is watched; toggling "enabled" or changing the service URL
takes effect on the next evaluation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			url := a.cfg.Browser.StartURL
			if len(args) == 1 {
				url = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, url)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

func (a *app) watch(ctx context.Context, url string) error {
	cfg := a.cfg

	reg, err := selectors.New(cfg.Selectors.Rules, cfg.Selectors.ThreadPath)
	if err != nil {
		return fmt.Errorf("selector overrides: %w", err)
	}

	settings, err := config.NewFileSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}
	if err := settings.Start(ctx); err != nil {
		return err
	}
	defer settings.Stop()
	if s, _ := settings.Settings(ctx); !s.Configured() {
		a.logger.Warn("drafting service not configured; cycles will stop at the request step",
			zap.String("settings", cfg.SettingsFile))
	}

	records, err := store.Open(cfg.Store.Path, cfg.Store.CacheSize)
	if err != nil {
		return err
	}
	defer records.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(promReg)

	mgr := browser.NewSessionManager(browser.ConfigFrom(cfg))
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			logging.BootWarn("browser shutdown: %v", err)
		}
	}()

	tab, sess, err := mgr.OpenTab(ctx, url)
	if err != nil {
		return err
	}
	a.logger.Info("watching tab",
		zap.String("session", sess.ID),
		zap.String("url", sess.URL),
		zap.String("control_url", mgr.ControlURL()),
		zap.Int("known_sessions", len(mgr.List())))
	fmt.Println(titleStyle.Render("replydraft") + " " + dimStyle.Render("watching "+sess.URL+" (Ctrl+C to stop)"))

	coord := pipeline.New(pipeline.Deps{
		Page:      tab,
		Extractor: extract.New(reg),
		Settings:  settings,
		Records:   records,
		Client:    drafts.NewClient(drafts.WithTimeouts(cfg.GetRequestTimeout(), cfg.GetStatusTimeout())),
		Presenter: presenter.New(tab, reg, nil, cfg.GetNoResponseFade()),
		Metrics:   m,
	})
	defer coord.Close()

	obs := observer.New(tab, reg, func(ctx context.Context, reason observer.Reason) {
		coord.Evaluate(ctx, string(reason))
	}, observer.Options{
		ReadyPoll:     cfg.GetReadyPoll(),
		Debounce:      cfg.GetDebounce(),
		AttachRetry:   cfg.GetAttachRetry(),
		DrainInterval: cfg.GetDrainInterval(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return obs.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, promReg)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("watch stopped")
		return nil
	}
	if err != nil {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if !mgr.IsConnected(checkCtx) {
			return fmt.Errorf("browser disconnected: %w", err)
		}
	}
	return err
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logging.Boot("metrics listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errc
		return nil
	}
}
