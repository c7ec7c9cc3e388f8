package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"storefront.org/internal/obs"
)

const serviceName = "storefront-api"

// ReadyProbe checks the backing stores the API depends on. Nil members are
// skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthService publishes readiness over the standard gRPC health protocol.
type HealthService struct {
	probe  readinessChecker
	server *health.Server
}

// NewHealthService creates the gRPC health endpoint. Services start as
// NOT_SERVING until the first Refresh.
func NewHealthService(probe readinessChecker) *HealthService {
	hs := &HealthService{probe: probe, server: health.NewServer()}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Register attaches the health service to s.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Refresh probes readiness once and publishes the result.
func (h *HealthService) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := h.probe.Check(ctx)
	if err != nil {
		obs.Logger().WithError(err).Warn("readiness check failed")
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
	return nil
}

// Run refreshes every interval until ctx ends, then marks the service as
// shutting down.
func (h *HealthService) Run(ctx context.Context, interval time.Duration) {
	_ = h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			_ = h.Refresh(ctx)
		}
	}
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(serviceName, status)
}
