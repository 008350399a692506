package http

import "github.com/gin-gonic/gin"

// Register mounts the request API. The metrics and WebSocket endpoints
// are mounted by the server, which owns those components.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/platform_info", h.PlatformInfo)
	r.GET("/apps/installed", h.ListInstalledApps)
	r.GET("/apps/runnable", h.ListRunnableApps)
	r.GET("/status", h.Status)
	r.POST("/invite", h.Invite)
	r.POST("/apps/start", h.StartApp)
	r.POST("/apps/stop", h.StopApp)
}
