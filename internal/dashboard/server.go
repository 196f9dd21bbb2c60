// Package dashboard serves the liteflow web console.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zulandar/liteflow/internal/auth"
	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/configs"
	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/pipeline"
	"github.com/zulandar/liteflow/internal/runconfig"
	"github.com/zulandar/liteflow/internal/storage"
	"github.com/zulandar/liteflow/internal/sysinfo"
)

// Deps are the services the console is built on.
type Deps struct {
	Verifier     *auth.Verifier
	Issuer       *auth.Issuer
	CookieSecure bool
	Pipelines    *pipeline.Registry
	Configs      *configs.Registry
	RunConfigs   *runconfig.Registry
	Storage      *storage.Manager
	Cache        *cache.Cache
	// RootDir is where disk usage is measured for the home page.
	RootDir string
	Version string
	// Software probes the host tooling; nil uses sysinfo.ExecRunner.
	Software sysinfo.Runner
}

func (d Deps) validate() error {
	switch {
	case d.Verifier == nil:
		return errors.New("dashboard: verifier is required")
	case d.Issuer == nil:
		return errors.New("dashboard: issuer is required")
	case d.Pipelines == nil:
		return errors.New("dashboard: pipeline registry is required")
	case d.Configs == nil:
		return errors.New("dashboard: config registry is required")
	case d.RunConfigs == nil:
		return errors.New("dashboard: run config registry is required")
	case d.Storage == nil:
		return errors.New("dashboard: storage manager is required")
	case d.Cache == nil:
		return errors.New("dashboard: cache is required")
	}
	return nil
}

// Server holds the parsed templates and services behind the router.
type Server struct {
	deps  Deps
	pages *pages
	log   zerolog.Logger
}

// New validates deps and parses the embedded templates.
func New(deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	p, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return &Server{deps: deps, pages: p, log: log.WithComponent("dashboard")}, nil
}

// Handler returns the console router.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log), requestMetrics())
	router.Use(auth.Gate(s.deps.Issuer, s.deps.CookieSecure))
	s.registerRoutes(router)
	return router
}

// StartOpts holds configuration for the console server.
type StartOpts struct {
	Deps Deps
	Port int
	// Host is the listen address; empty listens on all interfaces.
	Host string
	Out  io.Writer
}

// ShutdownTimeout bounds the graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Start launches the console HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 5000
	}
	s, err := New(opts.Deps)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	if opts.Out != nil {
		host := opts.Host
		if host == "" {
			host = "localhost"
		}
		fmt.Fprintf(opts.Out, "liteflow running at http://%s:%d\n", host, opts.Port)
	}
	s.log.Info().Str("addr", srv.Addr).Msg("console listening")

	return serve(ctx, srv, ln, s.log)
}

// serve runs srv on ln until ctx is cancelled. It returns only after
// in-flight requests have drained or ShutdownTimeout has passed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger zerolog.Logger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	<-done
	return nil
}
