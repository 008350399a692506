package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridian-robotics/rappd/internal/domain/lifecycle"
	"github.com/meridian-robotics/rappd/internal/domain/rapp"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// Lifecycle is the slice of the application controller the API serves.
type Lifecycle interface {
	StartApp(ctx context.Context, name string, remaps map[string]string) lifecycle.StartOutcome
	StopApp(ctx context.Context) lifecycle.StopOutcome
	Current() (*rapp.Descriptor, bool)
	CurrentName() string
}

// Control is the slice of the handoff arbiter the API serves.
type Control interface {
	Invite(ctx context.Context, remote string, cancel bool, namespaceOverride string) bool
	Controller() string
	Namespace() string
}

// Catalog is the slice of the application registry the API serves.
type Catalog interface {
	InstalledInfo(running string) []types.RappInfo
	RunnableInfo(running string) []types.RappInfo
	Counts() (installed, runnable int)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	platform  types.PlatformInfo
	catalog   Catalog
	apps      Lifecycle
	control   Control
	metrics   *monitoring.Metrics
	version   string
	startedAt time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(
	platform types.PlatformInfo,
	catalog Catalog,
	apps Lifecycle,
	control Control,
	metrics *monitoring.Metrics,
	version string,
) *Handlers {
	return &Handlers{
		platform:  platform,
		catalog:   catalog,
		apps:      apps,
		control:   control,
		metrics:   metrics,
		version:   version,
		startedAt: time.Now(),
	}
}

// Root handles the bare liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "rappd",
		"version": h.version,
	})
}

// Health reports component-level health
func (h *Handlers) Health(c *gin.Context) {
	installed, runnable := h.catalog.Counts()

	controller := h.control.Controller()
	if controller == "" {
		controller = types.NoController
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"application":    gin.H{"running": h.apps.CurrentName()},
		"control":        gin.H{"controller": controller},
		"catalog":        gin.H{"installed": installed, "runnable": runnable},
		"requests":       h.metrics.GetSnapshot(),
	})
}

// PlatformInfo reports the static platform descriptor
func (h *Handlers) PlatformInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform_info": h.platform,
		"version":       h.version,
	})
}

// ListInstalledApps lists every installed application
func (h *Handlers) ListInstalledApps(c *gin.Context) {
	running := h.apps.CurrentName()
	c.JSON(http.StatusOK, gin.H{
		"apps":    h.catalog.InstalledInfo(running),
		"running": running,
	})
}

// ListRunnableApps lists applications that can run on this platform
func (h *Handlers) ListRunnableApps(c *gin.Context) {
	running := h.apps.CurrentName()
	c.JSON(http.StatusOK, gin.H{
		"apps":    h.catalog.RunnableInfo(running),
		"running": running,
	})
}

// Status reports the application slot and control slot together
func (h *Handlers) Status(c *gin.Context) {
	status := types.StatusStopped
	var application interface{}
	if desc, ok := h.apps.Current(); ok {
		status = types.StatusRunning
		application = desc.Info(types.StatusRunning)
	}

	controller := h.control.Controller()
	if controller == "" {
		controller = types.NoController
	}

	c.JSON(http.StatusOK, gin.H{
		"application_status":    status,
		"application":           application,
		"remote_controller":     controller,
		"application_namespace": h.control.Namespace(),
	})
}

// Invite processes a control handoff request
func (h *Handlers) Invite(c *gin.Context) {
	var req types.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.control.Invite(c.Request.Context(), req.RemoteTargetName, req.Cancel, req.ApplicationNamespace)
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// StartApp starts an installed application
func (h *Handlers) StartApp(c *gin.Context) {
	var req types.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := h.apps.StartApp(c.Request.Context(), req.Name, req.Remappings)
	c.JSON(http.StatusOK, gin.H{
		"started":       out.Started,
		"message":       out.Message,
		"app_namespace": out.Namespace,
	})
}

// StopApp stops the running application
func (h *Handlers) StopApp(c *gin.Context) {
	out := h.apps.StopApp(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"stopped":    out.Stopped,
		"error_code": out.ErrorCode,
		"message":    out.Message,
	})
}
