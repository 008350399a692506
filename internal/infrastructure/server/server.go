package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/meridian-robotics/rappd/internal/api/http"
	"github.com/meridian-robotics/rappd/internal/api/middleware"
	"github.com/meridian-robotics/rappd/internal/api/ws"
	"github.com/meridian-robotics/rappd/internal/capability"
	"github.com/meridian-robotics/rappd/internal/domain/control"
	"github.com/meridian-robotics/rappd/internal/domain/lifecycle"
	"github.com/meridian-robotics/rappd/internal/domain/registry"
	"github.com/meridian-robotics/rappd/internal/gateway"
	"github.com/meridian-robotics/rappd/internal/infrastructure/config"
	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/infrastructure/tracing"
	"github.com/meridian-robotics/rappd/internal/shared/types"
	"github.com/meridian-robotics/rappd/internal/shared/utils"
)

// Version is stamped at build time via -ldflags.
var Version = "0.3.0"

// gatewayProbeTimeout bounds one Connected attempt during rebind.
const gatewayProbeTimeout = 300 * time.Millisecond

// Server wires the daemon together and owns the HTTP listener.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	gateway    *gateway.Client
	capability *capability.Client
	catalog    *registry.Manager
	arbiter    *control.Arbiter
	controller *lifecycle.Controller
	hub        *ws.Hub
	publisher  *feedPublisher

	watcher     *registry.Watcher
	watcherOnce sync.Once

	httpSrv   *http.Server
	rebinding atomic.Bool
}

// feedPublisher pushes refreshed application lists to the feed hub.
// It takes the running name as an argument rather than asking the
// controller, which may hold its transition lock while publishing.
type feedPublisher struct {
	catalog *registry.Manager
	hub     *ws.Hub
}

func (p *feedPublisher) PublishAppLists(running string) {
	p.hub.Publish(ws.TopicInstalledApps, ws.AppListFeed{
		Apps:    p.catalog.InstalledInfo(running),
		Running: running,
	})
	p.hub.Publish(ws.TopicRunnableApps, ws.AppListFeed{
		Apps:    p.catalog.RunnableInfo(running),
		Running: running,
	})
}

// nullSurface stands in for the gateway when none is configured.
// Every exposure trivially succeeds, so invitations and transitions
// behave identically in gateway-less development.
type nullSurface struct{}

func (nullSurface) Expose(context.Context, string, []string, types.ConnectionKind, bool) error {
	return nil
}

func (nullSurface) ExposeStrict(context.Context, string, []string, types.ConnectionKind, bool) error {
	return nil
}

// New assembles the daemon from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	platform := cfg.Platform()
	logger.Info("initializing rappd",
		zap.String("version", Version),
		zap.String("robot", cfg.Robot.Name),
		zap.String("platform", platform.Triple()))

	// The configured icon path is replaced by the file contents so
	// remote consoles can render it without filesystem access.
	if platform.Icon != "" {
		uri, err := utils.LoadIcon(platform.Icon)
		if err != nil {
			logger.Warn("robot icon unavailable", zap.Error(err))
			platform.Icon = ""
		} else {
			platform.Icon = uri
		}
	}

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("rappd", logger.Logger)

	var gatewayClient *gateway.Client
	if cfg.Gateway.Enabled {
		gatewayClient, err = gateway.NewClient(gateway.Config{
			Address:       cfg.Gateway.Address,
			HealthAddress: cfg.Gateway.HealthAddress,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create gateway client: %w", err)
		}
	}

	var capClient *capability.Client
	var catalogGate registry.Gate
	var lifecycleGate lifecycle.Gate
	if cfg.Capability.Enabled {
		capClient = capability.NewClient(cfg.Capability.Address, logger, metrics)
		catalogGate = capClient
		lifecycleGate = capClient
	} else {
		logger.Info("capability server disabled, apps with requirements will not be runnable")
	}

	catalog := registry.NewManager(platform, catalogGate, logger, metrics)
	hub := ws.NewHub(logger, metrics)
	publisher := &feedPublisher{catalog: catalog, hub: hub}

	var surface control.Surface = nullSurface{}
	var broker lifecycle.Broker = nullSurface{}
	if gatewayClient != nil {
		surface = gatewayClient
		broker = gatewayClient
	}

	arbiter := control.NewArbiter(cfg.Control.AllowList, cfg.Control.DenyList, surface, logger, metrics)
	controller := lifecycle.NewController(lifecycle.Deps{
		Catalog:   catalog,
		Gate:      lifecycleGate,
		Broker:    broker,
		View:      arbiter,
		Publisher: publisher,
		Verbose:   cfg.Apps.OutputToScreen,
	}, logger, metrics)
	arbiter.BindApps(controller)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(nil))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst))
		router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}

	handlers := apihttp.NewHandlers(platform, catalog, controller, arbiter, metrics, Version)
	handlers.Register(router)

	router.GET("/metrics", gin.WrapH(gzhttp.GzipHandler(metrics.Handler())))
	router.GET("/ws", hub.HandleConnection)

	return &Server{
		cfg:        cfg,
		log:        logger.Component("server"),
		metrics:    metrics,
		gateway:    gatewayClient,
		capability: capClient,
		catalog:    catalog,
		arbiter:    arbiter,
		controller: controller,
		hub:        hub,
		publisher:  publisher,
		httpSrv: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Rebind binds the daemon to its surroundings: it waits for the
// gateway link, adopts the gateway name for namespace defaults, loads
// the application catalog, publishes both list feeds, and in
// standalone mode advertises the request services network-wide. Safe
// to call again after a gateway restart; overlapping calls are
// dropped.
func (s *Server) Rebind(ctx context.Context) {
	if !s.rebinding.CompareAndSwap(false, true) {
		s.log.Warn("rebind already in progress, ignoring")
		return
	}
	defer s.rebinding.Store(false)

	gatewayName := s.waitForGateway(ctx)
	if gatewayName != "" {
		s.arbiter.SetGatewayName(gatewayName)
		s.log.Info("gateway link established", zap.String("gateway", gatewayName))
	} else {
		// Standalone base name, same role the gateway name plays when
		// one is connected.
		s.arbiter.SetGatewayName(s.cfg.Robot.Name)
		s.log.Info("proceeding without gateway", zap.String("base", s.cfg.Robot.Name))
	}

	if err := s.catalog.Load(ctx, s.cfg.Catalog.Paths...); err != nil {
		s.log.Error("catalog load failed", zap.Error(err))
	}
	s.publisher.PublishAppLists(s.controller.CurrentName())

	if s.cfg.Catalog.Watch {
		s.startWatcher(ctx)
	}

	if s.cfg.Control.Standalone && s.gateway != nil && gatewayName != "" {
		if err := s.gateway.Advertise(ctx, s.arbiter.ServiceSurface(), types.KindService, false); err != nil {
			s.log.Warn("standalone advertisement refused", zap.Error(err))
		}
	}
}

// waitForGateway polls the gateway link until it reports connected or
// the configured number of tries runs out. Returns the gateway name,
// or "" when unreachable or disabled.
func (s *Server) waitForGateway(ctx context.Context) string {
	if s.gateway == nil {
		return ""
	}

	tries := s.cfg.Gateway.WaitTries
	if tries <= 0 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		probeCtx, cancel := context.WithTimeout(ctx, gatewayProbeTimeout)
		name, err := s.gateway.Connected(probeCtx)
		cancel()
		if err == nil {
			return name
		}
		s.log.Debug("gateway not ready", zap.Int("try", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return ""
		case <-time.After(gatewayProbeTimeout):
		}
	}
	s.log.Warn("gateway unreachable, giving up", zap.Int("tries", tries))
	return ""
}

func (s *Server) startWatcher(ctx context.Context) {
	s.watcherOnce.Do(func() {
		w, err := registry.NewWatcher(s.catalog, s.cfg.Catalog.Paths, func() {
			s.publisher.PublishAppLists(s.controller.CurrentName())
		}, s.log)
		if err != nil {
			s.log.Warn("catalog watcher unavailable", zap.Error(err))
			return
		}
		if err := w.Start(ctx); err != nil {
			s.log.Warn("catalog watcher not started", zap.Error(err))
			w.Close()
			return
		}
		s.watcher = w
		s.log.Info("catalog watcher started", zap.Strings("paths", s.cfg.Catalog.Paths))
	})
}

// Shutdown stops the daemon: the listener drains, any running
// application is stopped while the gateway link is still up, and the
// remaining components close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")

	var firstErr error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Error("HTTP shutdown failed", zap.Error(err))
		firstErr = err
	}

	if out := s.controller.StopApp(ctx); !out.Stopped && out.ErrorCode != lifecycle.ErrorCodeNotRunning {
		s.log.Error("failed to stop rapp during shutdown", zap.String("message", out.Message))
	}
	s.controller.Close()

	if s.watcher != nil {
		s.watcher.Close()
	}
	s.hub.Close()

	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			s.log.Error("failed to close gateway client", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.log.Sync()
	return firstErr
}
