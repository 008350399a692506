package gateway

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/infrastructure/resilience"
	"github.com/meridian-robotics/rappd/internal/providers/httpclient"
)

// Config carries the two addresses of the local connection gateway:
// its HTTP API for flips and advertisements, and its gRPC endpoint
// for health probing.
type Config struct {
	Address       string
	HealthAddress string
}

// Client talks to the local connection gateway. All exposure traffic
// goes over HTTP; liveness goes over gRPC health checking so a hung
// gateway is distinguishable from a slow one.
type Client struct {
	http    *httpclient.Client
	conn    *grpc.ClientConn
	health  grpchealth.HealthClient
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewClient builds a gateway client. The gRPC connection is lazy; the
// gateway does not have to be up yet.
func NewClient(cfg Config, log *logging.Logger, metrics *monitoring.Metrics) (*Client, error) {
	httpCli := httpclient.New(httpclient.Config{
		BaseURL:          cfg.Address,
		Timeout:          5 * time.Second,
		BreakerName:      "gateway-http",
		FailureThreshold: 5,
		Cooldown:         10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	conn, err := grpc.NewClient(cfg.HealthAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up gateway health link to %s: %w", cfg.HealthAddress, err)
	}

	return &Client{
		http:    httpCli,
		conn:    conn,
		health:  grpchealth.NewHealthClient(conn),
		log:     log.Component("gateway"),
		metrics: metrics,
	}, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
