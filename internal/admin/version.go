package admin

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// Build information, set via -ldflags at build time
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

// Version handles GET /admin/version
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   Version,
		"commit":    CommitHash,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"platform":  runtime.GOOS + "/" + runtime.GOARCH,
	})
}
