package gateway

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

type infoResponse struct {
	Name string `json:"name"`
}

// Connected reports whether the local gateway is up and serving, and
// returns the name the gateway advertises itself under. The daemon
// derives its default application namespace from that name.
//
// The liveness gate runs over gRPC health checking first so that a
// down gateway never burns an HTTP attempt; the identity fetch only
// happens once the gateway answers SERVING.
func (c *Client) Connected(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &grpchealth.HealthCheckRequest{})
	if err != nil {
		return "", fmt.Errorf("gateway health check failed: %w", err)
	}
	if resp.GetStatus() != grpchealth.HealthCheckResponse_SERVING {
		return "", fmt.Errorf("gateway not serving: %s", resp.GetStatus())
	}

	var info infoResponse
	hresp, err := c.http.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&info).Get("/gateway/info")
	})
	if err != nil {
		return "", fmt.Errorf("gateway identity fetch failed: %w", err)
	}
	if hresp.IsError() {
		return "", fmt.Errorf("gateway identity fetch refused: %s", hresp.Status())
	}
	if info.Name == "" {
		return "", fmt.Errorf("gateway reported an empty name")
	}
	return info.Name, nil
}
