package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/domain/rapp"
	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

const (
	defaultSettleDelay  = 500 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
)

// Stop error codes carried on the wire.
const (
	ErrorCodeNone       = 0
	ErrorCodeNotRunning = 30
	ErrorCodeStopFailed = 31
)

// Catalog is the slice of the application registry the controller
// consults during validation.
type Catalog interface {
	Find(name string) (*rapp.Descriptor, bool)
	IsRunnable(name string) bool
}

// Gate starts and stops platform capabilities.
type Gate interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// Broker exposes or withdraws one batch of endpoint names.
type Broker interface {
	Expose(ctx context.Context, remote string, names []string, kind types.ConnectionKind, withdraw bool) error
}

// ControlView reports who holds control and under which namespace
// applications run.
type ControlView interface {
	Controller() string
	Namespace() string
}

// Publisher pushes refreshed application lists to feed subscribers.
// It must not call back into the controller.
type Publisher interface {
	PublishAppLists(running string)
}

// Instance is one launched application process.
type Instance interface {
	Start(namespace string, remaps map[string]string, verbose bool) (types.Endpoints, error)
	Stop() (types.Endpoints, error)
	IsRunning() bool
}

// LaunchFunc builds a fresh Instance for a descriptor.
type LaunchFunc func(desc *rapp.Descriptor) Instance

// StartOutcome reports one start attempt in caller-facing terms.
type StartOutcome struct {
	Started   bool
	Message   string
	Namespace string
}

// StopOutcome reports one stop attempt in caller-facing terms.
type StopOutcome struct {
	Stopped   bool
	ErrorCode int
	Message   string
}

// Deps wires the controller's collaborators. Launch may be nil, in
// which case descriptors are launched as local processes.
type Deps struct {
	Catalog   Catalog
	Gate      Gate
	Broker    Broker
	View      ControlView
	Publisher Publisher
	Launch    LaunchFunc
	Verbose   bool
}

type slot struct {
	name string
	desc *rapp.Descriptor
	inst Instance
	gen  uint64
}

// Controller owns the single application slot. At most one rapp runs
// at a time; every transition happens under one lock so concurrent
// starts, stops, and monitor wake-ups serialize cleanly.
type Controller struct {
	catalog   Catalog
	gate      Gate
	broker    Broker
	view      ControlView
	publisher Publisher
	launch    LaunchFunc
	verbose   bool
	log       *logging.Logger
	metrics   *monitoring.Metrics

	settleDelay  time.Duration
	pollInterval time.Duration

	mu      sync.RWMutex
	current *slot
	gen     uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates the lifecycle controller.
func NewController(deps Deps, log *logging.Logger, metrics *monitoring.Metrics) *Controller {
	if deps.Launch == nil {
		deps.Launch = func(desc *rapp.Descriptor) Instance {
			return rapp.NewInstance(desc, log)
		}
	}
	return &Controller{
		catalog:      deps.Catalog,
		gate:         deps.Gate,
		broker:       deps.Broker,
		view:         deps.View,
		publisher:    deps.Publisher,
		launch:       deps.Launch,
		verbose:      deps.Verbose,
		log:          log.Component("lifecycle"),
		metrics:      metrics,
		settleDelay:  defaultSettleDelay,
		pollInterval: defaultPollInterval,
		done:         make(chan struct{}),
	}
}

// StartApp validates, launches, and exposes one application.
//
// Validation order is fixed: occupied slot, installed, runnable.
// Required capabilities start in their declared order; the first
// failure aborts the start and capabilities already started stay up.
func (c *Controller) StartApp(ctx context.Context, name string, remaps map[string]string) StartOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur := c.current; cur != nil {
		c.metrics.RecordStart(monitoring.OutcomeConflict)
		return StartOutcome{Message: fmt.Sprintf("an application is already running [%s]", cur.name)}
	}

	desc, ok := c.catalog.Find(name)
	if !ok {
		c.metrics.RecordStart(monitoring.OutcomeNotFound)
		return StartOutcome{Message: fmt.Sprintf("tried to start rapp [%s], but it is not installed", name)}
	}

	if !c.catalog.IsRunnable(name) {
		c.metrics.RecordStart(monitoring.OutcomeNotRunnable)
		return StartOutcome{Message: fmt.Sprintf("rapp [%s] is installed but not runnable on this platform", name)}
	}

	if c.gate != nil {
		for _, capName := range desc.RequiredCapabilities {
			if err := c.gate.Start(ctx, capName); err != nil {
				c.log.Error("capability start failed",
					zap.String("rapp", name),
					zap.String("capability", capName),
					zap.Error(err))
				c.metrics.RecordStart(monitoring.OutcomeCapability)
				return StartOutcome{Message: fmt.Sprintf("failed to start capability [%s]: %v", capName, err)}
			}
		}
	}

	namespace := c.view.Namespace()
	inst := c.launch(desc)
	eps, err := inst.Start(namespace, remaps, c.verbose)
	if err != nil {
		c.log.Error("rapp launch failed", zap.String("rapp", name), zap.Error(err))
		c.metrics.RecordStart(monitoring.OutcomeLaunch)
		return StartOutcome{Message: fmt.Sprintf("failed to launch rapp [%s]: %v", name, err)}
	}

	// Let the process bring its endpoints up before they go visible.
	time.Sleep(c.settleDelay)

	// Endpoints go visible before the slot flips; an occupied slot
	// implies an exposed interface.
	if remote := c.view.Controller(); remote != "" {
		for _, kind := range types.Kinds() {
			if err := c.broker.Expose(ctx, remote, eps.ByKind(kind), kind, false); err != nil {
				c.log.Warn("endpoint exposure refused",
					zap.String("kind", string(kind)),
					zap.Error(err))
			}
		}
	}

	c.gen++
	c.current = &slot{name: desc.Name, desc: desc, inst: inst, gen: c.gen}
	c.metrics.SetRunning(true)
	c.metrics.RecordStart(monitoring.OutcomeSuccess)
	c.publisher.PublishAppLists(desc.Name)
	go c.watch(inst, c.gen)

	c.log.Info("started rapp",
		zap.String("rapp", desc.Name),
		zap.String("namespace", namespace))
	return StartOutcome{
		Started:   true,
		Message:   fmt.Sprintf("started rapp [%s]", desc.Name),
		Namespace: namespace,
	}
}

// StopApp stops the running application, if any.
func (c *Controller) StopApp(ctx context.Context) StopOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if cur == nil {
		c.metrics.RecordStop(monitoring.OutcomeNotRunning, monitoring.TriggerRequest)
		return StopOutcome{
			ErrorCode: ErrorCodeNotRunning,
			Message:   "tried to stop a rapp, but no rapp found running",
		}
	}
	return c.stopLocked(ctx, cur, monitoring.TriggerRequest)
}

// stopLocked tears down the current slot. Caller holds the write lock.
func (c *Controller) stopLocked(ctx context.Context, cur *slot, trigger string) StopOutcome {
	eps, err := cur.inst.Stop()

	// Withdrawal runs on whatever endpoint sets the instance reports,
	// even when termination itself failed; the slot stays occupied in
	// that case and a retry withdraws the same sets again, which the
	// gateway treats as a no-op.
	if remote := c.view.Controller(); remote != "" && !eps.Empty() {
		for _, kind := range types.Kinds() {
			if werr := c.broker.Expose(ctx, remote, eps.ByKind(kind), kind, true); werr != nil {
				c.log.Warn("endpoint withdrawal refused",
					zap.String("kind", string(kind)),
					zap.Error(werr))
			}
		}
	}

	if err != nil {
		c.log.Error("rapp stop failed", zap.String("rapp", cur.name), zap.Error(err))
		c.metrics.RecordStop(monitoring.OutcomeStopFailed, trigger)
		return StopOutcome{
			ErrorCode: ErrorCodeStopFailed,
			Message:   fmt.Sprintf("failed to stop rapp [%s]: %v", cur.name, err),
		}
	}

	c.current = nil
	c.metrics.SetRunning(false)
	c.metrics.RecordStop(monitoring.OutcomeSuccess, trigger)
	c.publisher.PublishAppLists("")
	c.log.Info("stopped rapp",
		zap.String("rapp", cur.name),
		zap.String("trigger", trigger))

	// Release capabilities in declaration order. The first failure
	// aborts the sweep without unwinding the ones already released.
	if c.gate != nil {
		for _, capName := range cur.desc.RequiredCapabilities {
			if err := c.gate.Stop(ctx, capName); err != nil {
				c.log.Warn("capability stop failed",
					zap.String("capability", capName),
					zap.Error(err))
				return StopOutcome{
					Stopped: true,
					Message: fmt.Sprintf("stopped rapp [%s], but failed to stop capability [%s]", cur.name, capName),
				}
			}
		}
	}

	return StopOutcome{Stopped: true, Message: fmt.Sprintf("stopped rapp [%s]", cur.name)}
}

// Current returns the descriptor of the running application.
func (c *Controller) Current() (*rapp.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, false
	}
	return c.current.desc, true
}

// CurrentName returns the running application's name, or "".
func (c *Controller) CurrentName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.name
}

// Close stops the background monitors. It does not stop the running
// application; callers that want a clean robot call StopApp first.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
