package control

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/domain/lifecycle"
	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// defaultNamespaceLeaf is where applications run when no gateway name
// or explicit override supplies a better root.
const defaultNamespaceLeaf = "application"

// Surface exposes and withdraws the daemon's own request services.
type Surface interface {
	Expose(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error
	ExposeStrict(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error
}

// AppStopper is the slice of the lifecycle controller the arbiter
// needs when a departing controller leaves an application running.
type AppStopper interface {
	CurrentName() string
	StopApp(ctx context.Context) lifecycle.StopOutcome
}

// Arbiter decides who may control this robot. It owns two slots: the
// remote controller identity and the application namespace. Whole
// invite/cancel exchanges serialize on one mutex; slot reads take a
// separate read lock so status queries never wait on gateway traffic.
type Arbiter struct {
	surface Surface
	log     *logging.Logger
	metrics *monitoring.Metrics

	allow []string
	deny  []string

	op sync.Mutex

	mu          sync.RWMutex
	apps        AppStopper
	remote      string
	namespace   string
	gatewayName string
}

// NewArbiter creates the arbiter with its control policy. The
// lifecycle controller is attached afterwards via BindApps; the two
// components reference each other.
func NewArbiter(allow, deny []string, surface Surface, log *logging.Logger, metrics *monitoring.Metrics) *Arbiter {
	return &Arbiter{
		surface:   surface,
		log:       log.Component("control"),
		metrics:   metrics,
		allow:     allow,
		deny:      deny,
		namespace: defaultNamespaceLeaf,
	}
}

// BindApps attaches the lifecycle controller used to stop a running
// application when its controller departs.
func (a *Arbiter) BindApps(apps AppStopper) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apps = apps
}

// Invite processes one control handoff request. With cancel=false the
// remote asks to become the controller; with cancel=true it gives
// control back. The returned bool is the wire-level result.
func (a *Arbiter) Invite(ctx context.Context, remote string, cancel bool, namespaceOverride string) bool {
	a.op.Lock()
	defer a.op.Unlock()

	if cancel {
		return a.release(ctx, remote)
	}
	return a.grant(ctx, remote, namespaceOverride)
}

func (a *Arbiter) grant(ctx context.Context, remote, namespaceOverride string) bool {
	if !a.permitted(remote) {
		a.log.Info("invitation refused by policy", zap.String("remote", remote))
		a.metrics.RecordInvitation(false, false)
		return false
	}

	cur := a.Controller()
	if cur == remote {
		a.log.Debug("repeated invitation from current controller", zap.String("remote", remote))
		a.metrics.RecordInvitation(true, false)
		return true
	}

	namespace := a.resolveNamespace(namespaceOverride)

	// The control surface must be visible to the new remote before the
	// grant is recorded; a failure leaves the standing grant untouched.
	if err := a.surface.ExposeStrict(ctx, remote, a.ServiceSurface(), types.KindService, false); err != nil {
		a.log.Error("control surface exposure failed, refusing invitation",
			zap.String("remote", remote),
			zap.Error(err))
		a.metrics.RecordInvitation(false, false)
		return false
	}

	// Takeover: the prior controller loses its grant. A running
	// application stops while the departing remote is still recorded,
	// so its endpoint withdrawals are addressed correctly, and the
	// surface is withdrawn from it before the slot flips.
	if cur != "" {
		if apps := a.stopper(); apps != nil && apps.CurrentName() != "" {
			if out := apps.StopApp(ctx); !out.Stopped && out.ErrorCode != lifecycle.ErrorCodeNotRunning {
				a.log.Error("failed to stop rapp for supplanted controller",
					zap.String("message", out.Message))
			}
		}
		if err := a.surface.Expose(ctx, cur, a.ServiceSurface(), types.KindService, true); err != nil {
			a.log.Warn("control surface withdrawal refused",
				zap.String("remote", cur), zap.Error(err))
		}
		a.log.Info("control taken over",
			zap.String("remote", remote),
			zap.String("supplanted", cur))
	}

	a.mu.Lock()
	a.remote = remote
	a.namespace = namespace
	a.mu.Unlock()

	a.log.Info("invitation accepted",
		zap.String("remote", remote),
		zap.String("namespace", namespace))
	a.metrics.RecordInvitation(true, false)
	return true
}

func (a *Arbiter) release(ctx context.Context, remote string) bool {
	cur := a.Controller()
	if cur != remote {
		a.log.Warn("cancellation refused, remote is not the controller",
			zap.String("remote", remote),
			zap.String("controller", cur))
		a.metrics.RecordInvitation(false, true)
		return false
	}

	if err := a.surface.Expose(ctx, remote, a.ServiceSurface(), types.KindService, true); err != nil {
		a.log.Warn("control surface withdrawal refused", zap.Error(err))
	}

	// Stop a still-running application while the departing remote is
	// still recorded as controller, so its endpoint withdrawals are
	// addressed correctly.
	if apps := a.stopper(); apps != nil && apps.CurrentName() != "" {
		if out := apps.StopApp(ctx); !out.Stopped && out.ErrorCode != lifecycle.ErrorCodeNotRunning {
			a.log.Error("failed to stop rapp for departing controller",
				zap.String("message", out.Message))
		}
	}

	a.mu.Lock()
	a.remote = ""
	a.mu.Unlock()

	a.log.Info("control released", zap.String("remote", remote))
	a.metrics.RecordInvitation(true, true)
	return true
}

// permitted applies the allow/deny policy. A non-empty allow-list is
// exhaustive; otherwise anyone not denied may control.
func (a *Arbiter) permitted(remote string) bool {
	if len(a.allow) > 0 {
		return slices.Contains(a.allow, remote)
	}
	return !slices.Contains(a.deny, remote)
}

func (a *Arbiter) resolveNamespace(override string) string {
	if override != "" {
		return override
	}
	a.mu.RLock()
	gw := a.gatewayName
	a.mu.RUnlock()
	if gw != "" {
		return gw + "/" + defaultNamespaceLeaf
	}
	return defaultNamespaceLeaf
}

func (a *Arbiter) stopper() AppStopper {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.apps
}

// SetGatewayName records the local gateway identity once the link is
// up. The default namespace follows the gateway name unless an
// invitation already resolved something more specific.
func (a *Arbiter) SetGatewayName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gatewayName = name
	if a.namespace == defaultNamespaceLeaf && name != "" {
		a.namespace = name + "/" + defaultNamespaceLeaf
	}
}

// ServiceSurface returns the request service names offered to a
// controller, rooted under the gateway name when one is known.
func (a *Arbiter) ServiceSurface() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	base := "/rappd"
	if a.gatewayName != "" {
		base = "/" + a.gatewayName
	}
	return []string{base + "/start_app", base + "/stop_app"}
}

// Controller returns the current controller identity, or "".
func (a *Arbiter) Controller() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.remote
}

// Namespace returns the namespace applications currently start under.
func (a *Arbiter) Namespace() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.namespace
}
