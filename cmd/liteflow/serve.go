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

	"github.com/spf13/cobra"

	"github.com/zulandar/liteflow/internal/auth"
	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/dashboard"
	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/metrics"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		host        string
		port        int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web console",
		Long: `Starts the liteflow web console. The login password, storage backends and
an optional enforced default config are validated before the listener opens;
any problem there is fatal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, host, port, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "address to listen on (default all interfaces)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config, 5000)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, host string, port int, metricsAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := log.WithComponent("serve")

	verifier, err := auth.NewVerifier(cfg.Auth.Password, cfg.Auth.PasswordHash)
	if err != nil {
		return err
	}
	secret := cfg.Auth.SecretKey
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return err
		}
		logger.Warn().Msg("no secret key configured; sessions end when the process restarts")
	}
	issuer, err := auth.NewIssuer(secret, cfg.Auth.AccessTokenExpires, cfg.Auth.RefreshTokenExpires)
	if err != nil {
		return err
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper, err := cache.StartSweeper(a.cache, cache.DefaultSweepSchedule)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go serveMetrics(ctx, metricsAddr)
	}
	if port == 0 {
		port = cfg.Port
	}

	err = dashboard.Start(ctx, dashboard.StartOpts{
		Deps: dashboard.Deps{
			Verifier:     verifier,
			Issuer:       issuer,
			CookieSecure: cfg.Auth.CookieSecure,
			Pipelines:    a.pipelines,
			Configs:      a.configs,
			RunConfigs:   a.runConfigs,
			Storage:      a.storage,
			Cache:        a.cache,
			RootDir:      cfg.RootDir,
			Version:      Version,
		},
		Host: host,
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
	}
	return err
}

// serveMetrics runs the Prometheus listener until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	l := log.WithComponent("metrics")
	l.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error().Err(err).Msg("metrics listener")
	}
}
