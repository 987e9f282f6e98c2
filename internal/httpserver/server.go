package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harshgupt/game-telemetry-system/internal/handlers"
	"github.com/harshgupt/game-telemetry-system/internal/kpi"
	"github.com/harshgupt/game-telemetry-system/internal/store"
)

// NewRouter wires public endpoints and the telemetry API.
// Public: /, /health, /ready
// API: /api/events, /api/kpis
func NewRouter(st store.Store) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Game Telemetry API running")
	})

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	api := r.Group("/api")
	handlers.RegisterEventRoutes(api, st)
	handlers.RegisterKPIRoutes(api, kpi.New(st))

	return r
}
