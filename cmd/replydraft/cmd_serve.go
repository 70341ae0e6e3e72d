package main

import (
	"os"
	"os/signal"
	"syscall"

	"replydraft/internal/draftserver"
	"replydraft/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drafting service",
		Long: `Hosts POST /api/linkedin/draft and GET /health. Requests must carry
"Authorization: Bearer <API_SECRET>".

The LLM backend is chosen by ANTHROPIC_API_KEY or GEMINI_API_KEY (or
server.provider / server.api_key in the config file).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			llm, err := draftserver.NewCompleter(ctx, cfg.Server)
			if err != nil {
				return err
			}

			if !a.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			promReg := prometheus.NewRegistry()
			promReg.MustRegister(collectors.NewGoCollector())
			srv := draftserver.NewServer(
				draftserver.NewDrafter(llm, cfg.Server.Persona, draftserver.WithVoice(cfg.Server.Voice)),
				cfg.Server.APISecret,
				metrics.MustNewMetrics(promReg),
			)
			srv.Engine().GET("/metrics", gin.WrapH(metrics.Handler(promReg)))

			a.logger.Info("drafting service starting",
				zap.String("addr", cfg.Server.Addr),
				zap.String("provider", cfg.Server.Provider),
				zap.String("model", cfg.Server.Model))
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8000)")
	return cmd
}
