package gateway

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// flipRule is one exposure or withdrawal instruction for the gateway.
type flipRule struct {
	Remote   string `json:"remote"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Withdraw bool   `json:"withdraw"`
}

type flipBatch struct {
	BatchID string     `json:"batch_id"`
	Rules   []flipRule `json:"rules"`
}

type gatewayResponse struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// Expose publishes or withdraws a set of endpoint names of one kind to
// a remote identity, as a single batch.
//
// Transport-level submission failures (gateway unreachable, timeouts,
// gateway-side 5xx) are swallowed with a warning: the process may be
// shutting down concurrently and a lifecycle transition must not fail
// on them. A batch the gateway delivers but rejects is logged as an
// error, also without failing the caller. Only a client-side request
// error (4xx) comes back as an error.
func (c *Client) Expose(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error {
	err := c.submit(ctx, remote, names, kind, withdraw)
	switch err.(type) {
	case nil:
		return nil
	case *rejectionError:
		c.log.Error("gateway rejected exposure batch",
			zap.String("remote", remote),
			zap.String("kind", string(kind)),
			zap.Bool("withdraw", withdraw),
			zap.Error(err))
		c.metrics.RecordExposure(string(kind), monitoring.ExposureRejected)
		return nil
	case *requestError:
		c.metrics.RecordExposure(string(kind), monitoring.ExposureRejected)
		return err
	default:
		c.log.Warn("gateway unreachable, exposure batch dropped",
			zap.String("remote", remote),
			zap.String("kind", string(kind)),
			zap.Bool("withdraw", withdraw),
			zap.Error(err))
		c.metrics.RecordExposure(string(kind), monitoring.ExposureSwallowed)
		return nil
	}
}

// ExposeStrict submits one exposure batch and reports every failure,
// for callers whose own outcome depends on the exposure landing (the
// control-surface grant during an invitation).
func (c *Client) ExposeStrict(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error {
	err := c.submit(ctx, remote, names, kind, withdraw)
	if err != nil {
		c.metrics.RecordExposure(string(kind), monitoring.ExposureRejected)
		return err
	}
	return nil
}

// submit posts one flip batch. Empty batches are a no-op.
func (c *Client) submit(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error {
	if len(names) == 0 {
		return nil
	}

	timer := monitoring.NewTimer(c.metrics, "gateway", "flip")

	batch := flipBatch{
		BatchID: uuid.NewString(),
		Rules:   make([]flipRule, 0, len(names)),
	}
	for _, name := range names {
		batch.Rules = append(batch.Rules, flipRule{
			Remote:   remote,
			Name:     name,
			Kind:     string(kind),
			Withdraw: withdraw,
		})
	}

	var out gatewayResponse
	resp, err := c.http.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(batch).SetResult(&out).Post("/gateway/flips")
	})
	if err != nil {
		timer.Stop("unavailable")
		return fmt.Errorf("flip submission failed: %w", err)
	}
	if resp.IsError() {
		timer.Stop("error")
		return &requestError{status: resp.Status()}
	}
	if !out.Result {
		timer.Stop("rejected")
		return &rejectionError{message: out.Message}
	}

	timer.Stop("success")
	c.metrics.RecordExposure(string(kind), monitoring.ExposureSent)
	c.log.Debug("exposure batch accepted",
		zap.String("remote", remote),
		zap.String("kind", string(kind)),
		zap.Int("rules", len(batch.Rules)),
		zap.Bool("withdraw", withdraw))
	return nil
}

// Advertise makes the daemon's own endpoints visible network-wide, for
// standalone operation without a controlling remote. Same swallow
// semantics as Expose.
func (c *Client) Advertise(ctx context.Context, names []string, kind types.ConnectionKind, withdraw bool) error {
	if len(names) == 0 {
		return nil
	}

	timer := monitoring.NewTimer(c.metrics, "gateway", "advertise")

	body := struct {
		Names    []string `json:"names"`
		Kind     string   `json:"kind"`
		Withdraw bool     `json:"withdraw"`
	}{Names: names, Kind: string(kind), Withdraw: withdraw}

	var out gatewayResponse
	resp, err := c.http.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).SetResult(&out).Post("/gateway/advertisements")
	})
	if err != nil {
		timer.Stop("unavailable")
		c.log.Warn("gateway unreachable, advertisement dropped", zap.Error(err))
		return nil
	}
	if resp.IsError() {
		timer.Stop("error")
		return &requestError{status: resp.Status()}
	}
	if !out.Result {
		timer.Stop("rejected")
		c.log.Error("gateway rejected advertisement",
			zap.String("message", out.Message))
		return nil
	}

	timer.Stop("success")
	return nil
}

// requestError marks a malformed submission (HTTP 4xx).
type requestError struct {
	status string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("gateway refused request: %s", e.status)
}

// rejectionError marks a delivered batch the gateway would not apply.
type rejectionError struct {
	message string
}

func (e *rejectionError) Error() string {
	if e.message == "" {
		return "gateway rejected batch"
	}
	return e.message
}
