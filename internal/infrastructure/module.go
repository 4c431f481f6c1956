// Package infrastructure provides logging and metrics components and their Fx modules.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
	pkginfra "github.com/Raikerian/meetingmind-streamer/pkg/infrastructure"
)

// LoggerModule provides logging infrastructure.
var LoggerModule = fx.Module("logger",
	fx.Provide(NewZapLogger),
)

// MetricsModule provides the Prometheus registry, the streamer metrics and the scrape endpoint.
var MetricsModule = fx.Module("metrics",
	fx.Provide(
		NewRegistry,
		NewMetricsProvider,
	),
	fx.Invoke(RegisterMetricsServer),
)

// NewZapLoggerParams holds dependencies for NewZapLogger.
type NewZapLoggerParams struct {
	fx.In
	Cfg *config.Config
	LC  fx.Lifecycle
}

// NewZapLogger creates and configures a new Zap logger.
func NewZapLogger(params NewZapLoggerParams) (*zap.Logger, error) {
	zapConfig, err := zapConfigFor(params.Cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr sync fails on some platforms
			_ = logger.Sync()

			return nil
		},
	})

	return logger, nil
}

func zapConfigFor(level string) (zap.Config, error) {
	if level == "debug" {
		return zap.NewDevelopmentConfig(), nil
	}

	zapConfig := zap.NewProductionConfig()
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	zapConfig.Level = lvl

	return zapConfig, nil
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// NewMetricsProvider registers the streamer metrics on the app registry.
func NewMetricsProvider(reg *prometheus.Registry) *Metrics {
	return NewMetrics(reg)
}

// RegisterMetricsServerParams holds dependencies for RegisterMetricsServer.
type RegisterMetricsServerParams struct {
	fx.In
	Cfg      *config.Config
	Registry *prometheus.Registry
	Logger   *zap.Logger
	LC       fx.Lifecycle
}

// RegisterMetricsServer serves the registry while the app runs. It does nothing without an address.
func RegisterMetricsServer(params RegisterMetricsServerParams) {
	addr := params.Cfg.Metrics.Address
	if addr == "" {
		params.Logger.Debug("Metrics endpoint disabled")

		return
	}

	path := params.Cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger := params.Logger.Named("metrics")

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("metrics listen on %s: %w", addr, err)
			}
			logger.Info("Serving metrics", zap.String("address", ln.Addr().String()), zap.String("path", path))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server stopped", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// NewFxLoggerAdapter creates a new Fx logger adapter using the public package.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return pkginfra.NewFxLoggerAdapter(logger)
}
