package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harshgupt/game-telemetry-system/internal/kpi"
)

// RegisterKPIRoutes registers the dashboard aggregation endpoints.
//
// GET /kpis        — composite summary (scalars, DAU trend, top-5 lists)
// GET /kpis/hourly — 24-bucket hourly trend
//
// Aggregation failures surface as a single opaque 500 for the whole
// response; partial results are never returned.
func RegisterKPIRoutes(r gin.IRoutes, svc *kpi.Service) {
	r.GET("/kpis", func(c *gin.Context) {
		f, err := parseFilter(c, true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		summary, err := svc.Summary(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	r.GET("/kpis/hourly", func(c *gin.Context) {
		f, err := parseFilter(c, false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		trend, err := svc.HourlyTrend(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
		c.JSON(http.StatusOK, trend)
	})
}
