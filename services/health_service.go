package services

import (
	"context"
	"time"

	"github.com/ReploidGI0/storefront-cart/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker mirrors the storage backend's liveness into a gRPC health server.
type HealthChecker struct {
	backend  storage.Storage
	server   *health.Server
	service  string
	interval time.Duration
	log      logrus.FieldLogger
}

// NewHealthCheckService returns a checker that reports under service and under "".
func NewHealthCheckService(backend storage.Storage, server *health.Server, service string, interval time.Duration, log logrus.FieldLogger) *HealthChecker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HealthChecker{
		backend:  backend,
		server:   server,
		service:  service,
		interval: interval,
		log:      log.WithField("component", "health"),
	}
}

// Check pings the backend once and publishes the result.
func (h *HealthChecker) Check(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	ok := h.backend.Ping(ctx)
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	} else {
		h.log.Warn("storage backend is not responding")
	}
	h.server.SetServingStatus(h.service, status)
	h.server.SetServingStatus("", status)
	return ok
}

// Run checks immediately and then every interval until ctx is done,
// at which point every service is marked NOT_SERVING.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
