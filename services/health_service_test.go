package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ReploidGI0/storefront-cart/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type flakyStorage struct {
	*storage.LocalStorage
	up atomic.Bool
}

func (f *flakyStorage) Ping(ctx context.Context) bool {
	return f.up.Load()
}

func servingStatus(t *testing.T, srv *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthChecker_Check(t *testing.T) {
	log, _ := test.NewNullLogger()
	backend := &flakyStorage{LocalStorage: storage.NewLocalStorage()}
	srv := health.NewServer()
	checker := NewHealthCheckService(backend, srv, "cartservice", time.Minute, log)

	backend.up.Store(true)
	assert.True(t, checker.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, srv, "cartservice"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, srv, ""))

	backend.up.Store(false)
	assert.False(t, checker.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, srv, "cartservice"))
}

func TestHealthChecker_Run(t *testing.T) {
	log, _ := test.NewNullLogger()
	backend := &flakyStorage{LocalStorage: storage.NewLocalStorage()}
	backend.up.Store(true)
	srv := health.NewServer()
	checker := NewHealthCheckService(backend, srv, "cartservice", 10*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "cartservice"})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	backend.up.Store(false)
	assert.Eventually(t, func() bool {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "cartservice"})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
