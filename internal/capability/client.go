package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/infrastructure/resilience"
	"github.com/meridian-robotics/rappd/internal/providers/httpclient"
)

// ErrUnavailable marks failures to reach the capability server at all,
// as opposed to the server refusing an operation. Callers branch on it
// to apply the gate-down rules.
var ErrUnavailable = errors.New("capability server unavailable")

// callTimeout bounds every capability operation.
const callTimeout = time.Second

// MissingCapabilitiesError reports requirements absent from the
// server's available set.
type MissingCapabilitiesError struct {
	Missing []string
}

func (e *MissingCapabilitiesError) Error() string {
	return fmt.Sprintf("missing capabilities: %s", strings.Join(e.Missing, ", "))
}

// Client talks to the capability server, which owns all capability
// activation state. Start and Stop are idempotent on the server side.
type Client struct {
	http    *httpclient.Client
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewClient creates a capability server client.
func NewClient(address string, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:          address,
			Timeout:          callTimeout,
			BreakerName:      "capability",
			FailureThreshold: 5,
			Cooldown:         15 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("capability breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		log:     log,
		metrics: metrics,
	}
}

type opRequest struct {
	Name string `json:"name"`
}

type opResponse struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

type listResponse struct {
	Capabilities []string `json:"capabilities"`
}

// Available lists the capability names the server can activate.
func (c *Client) Available(ctx context.Context) ([]string, error) {
	timer := monitoring.NewTimer(c.metrics, "capability", "list")

	var out listResponse
	resp, err := c.http.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/capabilities")
	})
	if err != nil {
		timer.Stop("unavailable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		timer.Stop("error")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status())
	}

	timer.Stop("success")
	return out.Capabilities, nil
}

// Start activates a capability. A server-side refusal carries the
// server's reason.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.operate(ctx, "start", name)
}

// Stop deactivates a capability.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.operate(ctx, "stop", name)
}

func (c *Client) operate(ctx context.Context, op, name string) error {
	timer := monitoring.NewTimer(c.metrics, "capability", op)

	var out opResponse
	resp, err := c.http.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(opRequest{Name: name}).SetResult(&out).Post("/capabilities/" + op)
	})
	if err != nil {
		timer.Stop("unavailable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		timer.Stop("error")
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status())
	}
	if !out.Result {
		timer.Stop("refused")
		c.log.Warn("capability operation refused",
			zap.String("op", op),
			zap.String("capability", name),
			zap.String("reason", out.Message))
		if out.Message == "" {
			return fmt.Errorf("capability %s refused to %s", name, op)
		}
		return errors.New(out.Message)
	}

	timer.Stop("success")
	return nil
}

// CompatibilityCheck verifies every required capability is available.
// It returns nil for an empty requirement list without a network call,
// a MissingCapabilitiesError naming the gaps, or ErrUnavailable when
// the server cannot be reached.
func (c *Client) CompatibilityCheck(ctx context.Context, required []string) error {
	if len(required) == 0 {
		return nil
	}

	available, err := c.Available(ctx)
	if err != nil {
		return err
	}

	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[name] = struct{}{}
	}

	var missing []string
	for _, name := range required {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingCapabilitiesError{Missing: missing}
	}
	return nil
}
