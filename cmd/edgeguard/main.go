// Command edgeguard runs the request filter in front of the seller-account
// web application and proxies allowed traffic to it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/sellerdesk/edgeguard/internal/config"
	"github.com/sellerdesk/edgeguard/internal/guard"
	"github.com/sellerdesk/edgeguard/internal/handlers"
	"github.com/sellerdesk/edgeguard/internal/metrics"
	"github.com/sellerdesk/edgeguard/internal/middleware"
	"github.com/sellerdesk/edgeguard/internal/patterns"
	"github.com/sellerdesk/edgeguard/internal/proxy"
	"github.com/sellerdesk/edgeguard/internal/security"
	"github.com/sellerdesk/edgeguard/pkg/version"
)

func main() {
	cfg := config.Load()

	logs := setupLogging(cfg)

	cfg.Validate()

	printBanner()

	err := run(cfg)
	if err != nil {
		log.Error().Err(err).Msg("edgeguard stopped with error")
	}
	// Flush buffered entries before exiting.
	_ = logs.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := log.Logger

	var m *metrics.Metrics
	registry := metrics.NewRegistry()
	if cfg.MetricsEnabled {
		m = metrics.New(registry)
		m.SetBuildInfo(version.Full(), version.GoVersion())
	}

	patternOpts := patterns.Options{
		Path:      cfg.PatternsPath,
		HotReload: cfg.PatternsHotReload,
		Logger:    logger,
	}
	if cfg.HasRemotePatterns() {
		patternOpts.RemoteURL = cfg.PatternsRemoteURL
		patternOpts.RefreshInterval = cfg.PatternsRefreshInterval
	}
	if m != nil {
		patternOpts.OnReload = m.PatternReloaded
	}

	patternMgr, err := patterns.NewManager(patternOpts)
	if err != nil {
		return fmt.Errorf("load pattern set: %w", err)
	}
	defer patternMgr.Close()

	active := patternMgr.Current()
	log.Info().
		Str("version", active.Version()).
		Int("patterns", active.Len()).
		Str("source", patternMgr.Stats().Source).
		Msg("Pattern set active")
	if m != nil {
		m.SetPatternSet(active)
	}

	edge, upstream, err := buildEdge(cfg, logger, patternMgr, m)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	server := &http.Server{
		Handler:           edge,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          newServerErrorLog(logger),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("address", ln.Addr().String()).
			Str("upstream", upstream.Upstream().Redacted()).
			Int("max_connections", cfg.MaxConnections).
			Strs("excluded_paths", cfg.ExcludedPaths).
			Bool("metrics_enabled", cfg.MetricsEnabled).
			Msg("edgeguard is ready to accept requests")

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("edge server: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler(registry))

		metricsServer = &http.Server{
			Addr:         net.JoinHostPort(cfg.MetricsBindAddr, fmt.Sprint(cfg.MetricsPort)),
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Info().
				Str("address", metricsServer.Addr).
				Msg("Prometheus metrics server started")

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("edge server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

// buildEdge assembles the edge handler:
// Recovery, RequestID, AccessLog, then the guard in front of the router.
// m may be nil when metrics are disabled.
func buildEdge(cfg *config.Config, logger zerolog.Logger, patternMgr *patterns.Manager, m *metrics.Metrics) (http.Handler, *proxy.Proxy, error) {
	upstream, err := proxy.New(cfg.UpstreamURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("configure upstream: %w", err)
	}

	guardOpts := []guard.Option{
		guard.WithLogger(logger.With().Str("component", "guard").Logger()),
		guard.WithExcludedPaths(cfg.ExcludedPaths),
		guard.WithRequestID(func(r *http.Request) string {
			return middleware.RequestIDFromContext(r.Context())
		}),
	}
	if m != nil {
		guardOpts = append(guardOpts, guard.WithRecorder(m))
	}
	requestGuard := guard.New(security.NewValidator(patternMgr), guardOpts...)

	ops := handlers.New(patternMgr, logger)
	edge := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.AccessLog(logger, handlers.PathHealth),
		requestGuard.Middleware,
	)(handlers.Router(ops, upstream, cfg.AdminToken))

	return edge, upstream, nil
}

// setupLogging points the global logger at stdout through a non-blocking
// ring buffer. When the sink cannot keep up, entries are dropped and the
// loss is reported instead of stalling request handling.
func setupLogging(cfg *config.Config) io.Closer {
	var out io.Writer = os.Stdout
	if cfg.LogFormat != config.LogFormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	writer := diode.NewWriter(out, cfg.LogBufferSize, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "edgeguard: log buffer full, dropped %d messages\n", missed)
	})

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return writer
}

// newServerErrorLog routes net/http server errors into the structured log.
func newServerErrorLog(logger zerolog.Logger) *stdlog.Logger {
	return stdlog.New(logger.With().Str("component", "http").Logger(), "", 0)
}

func printBanner() {
	banner := `
          _                                     _
  ___  __| | __ _  ___  __ _ _   _  __ _ _ __ __| |
 / _ \/ _' |/ _' |/ _ \/ _' | | | |/ _' | '__/ _' |
|  __/ (_| | (_| |  __/ (_| | |_| | (_| | | | (_| |
 \___|\__,_|\__, |\___|\__, |\__,_|\__,_|_|  \__,_|
            |___/      |___/
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting edgeguard")
}
