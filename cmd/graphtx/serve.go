package main

import (
	"io"
	"net/http"

	"github.com/dd0wney/cluso-graphtx/pkg/health"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
	"github.com/dd0wney/cluso-graphtx/pkg/server"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const defaultMetricsAddr = ":9464"

func newServeCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints until interrupted.",
		Long: `
Opens every configured database and serves /health, /ready and /metrics.
SIGINT or SIGTERM drains in-flight requests and shuts the databases down.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.NewRegistry()
			m.GetPrometheusRegistry().MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			module, cfg, err := openModule(cmd, stderr, m)
			if err != nil {
				return err
			}

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.MetricsAddr
			}
			if addr == "" {
				addr = defaultMetricsAddr
			}

			checker := health.NewChecker()
			checker.RegisterCheck("registry", health.RegistryCheck(module.Registry().Names))
			for _, name := range module.Registry().Names() {
				h, _ := module.Registry().Get(name)
				check := health.TransactionCheck(name, h.DB)
				checker.RegisterCheck("database:"+name, check)
				checker.RegisterReadinessCheck("database:"+name, check)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(m.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
			mux.Handle("/health", checker.HTTPHandler())
			mux.Handle("/ready", checker.ReadinessHandler())

			logger := logging.NewJSONLogger(stderr, logging.ParseLevel(cfg.LogLevel))
			gs := server.NewGracefulServer(addr, mux, logger)
			gs.OnShutdown(func() { module.Shutdown() })
			return gs.Run(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default: metrics_addr from the configuration, else "+defaultMetricsAddr+").")
	return cmd
}
