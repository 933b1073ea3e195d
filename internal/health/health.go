// Package health exposes readiness over the standard gRPC health protocol.
// The process is SERVING while the store answers pings.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health checks can ask about besides the empty overall name.
const ServiceName = "kyverinvoices.Ledger"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	server   *health.Server
	pinger   Pinger
	logger   *slog.Logger
	Interval time.Duration
	Timeout  time.Duration

	last healthpb.HealthCheckResponse_ServingStatus
}

func NewChecker(p Pinger, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{
		server:   health.NewServer(),
		pinger:   p,
		logger:   logger.With("component", "health"),
		Interval: 10 * time.Second,
		Timeout:  2 * time.Second,
	}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Register installs the health service on a gRPC server.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Server returns the underlying health server, mostly for tests.
func (c *Checker) Server() healthpb.HealthServer {
	return c.server
}

// Check pings the store once and publishes the result.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if c.last != status {
			c.logger.Warn("store unreachable, reporting NOT_SERVING", "error", err)
		}
	} else if c.last != status {
		c.logger.Info("store reachable, reporting SERVING")
	}
	c.set(status)
	return status
}

// Run checks every Interval until ctx ends, then marks everything NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.last = status
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
