package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReploidGI0/storefront-cart/cartstore"
	"github.com/ReploidGI0/storefront-cart/catalog"
	"github.com/ReploidGI0/storefront-cart/config"
	"github.com/ReploidGI0/storefront-cart/logging"
	"github.com/ReploidGI0/storefront-cart/services"
	"github.com/ReploidGI0/storefront-cart/storage"
	"github.com/ReploidGI0/storefront-cart/tracing"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	serviceName    = "cartservice"
	serviceVersion = "v1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	if cfg.TracingEnabled() {
		log.Infof("Initializing OpenTelemetry TracerProvider (endpoint %s)...", cfg.OTLPEndpoint)
		tp, err := tracing.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Error shutting down tracer provider: %v", err)
			}
		}()

		log.Info("Initializing OpenTelemetry MeterProvider...")
		mp, err := tracing.InitMeterProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mp.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Error shutting down meter provider: %v", err)
			}
		}()
	}

	backend, closeBackend, err := newStorage(cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()
	if err := backend.Initialize(ctx); err != nil {
		return errors.Wrapf(err, "failed to initialize %s storage", cfg.StorageBackend)
	}

	var source catalog.Source = catalog.NewStaticSource()
	if cfg.CatalogPath != "" {
		source = catalog.NewFileSource(cfg.CatalogPath)
	}

	store, err := cartstore.NewCartStore(ctx, source, backend,
		cartstore.WithLogger(log),
		cartstore.WithStorageKey(cfg.StorageKey),
	)
	if err != nil {
		return err
	}

	// gRPC health server
	healthLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on health port %d", cfg.HealthPort)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	checker := services.NewHealthCheckService(backend, healthSrv, serviceName, cfg.HealthInterval, log)
	go checker.Run(ctx)

	// HTTP cart API
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           services.NewCartHandler(store, log).Router(serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("Health gRPC server listening on :%d", cfg.HealthPort)
		if err := grpcServer.Serve(healthLis); err != nil {
			errCh <- errors.Wrap(err, "health server")
		}
	}()
	go func() {
		log.Infof("Cart HTTP server listening on %s (storage=%s)", httpServer.Addr, cfg.StorageBackend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "http server")
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal, initiating graceful shutdown...")
	case runErr = <-errCh:
		log.WithError(runErr).Error("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	grpcServer.GracefulStop()
	return runErr
}

// newStorage picks the backend named in cfg. The returned func releases it.
func newStorage(cfg config.Config, log *logrus.Logger) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Warn("Using LocalStorage; the cart will not survive a restart")
		return storage.NewLocalStorage(), func() {}, nil
	case config.BackendRedis:
		log.Infof("Using RedisStorage with address %s", cfg.RedisAddr)
		r, err := storage.NewRedisStorage(cfg.RedisAddr, cfg.RedisNamespace, storage.WithRedisLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return r, func() {
			if err := r.Close(); err != nil {
				log.WithError(err).Warn("failed to close Redis client")
			}
		}, nil
	default:
		log.Infof("Using FileStorage in %s", cfg.StorageDir)
		return storage.NewFileStorage(cfg.StorageDir, log), func() {}, nil
	}
}
