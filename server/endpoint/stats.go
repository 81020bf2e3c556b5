package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowmint/txfabric/resilience"
)

// Stats exposes the resilience registry's pool statistics: per-pool
// snapshots plus the aggregate across all pools.
func Stats(registry *resilience.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pools":     registry.PoolStats(),
			"aggregate": registry.AggregateStats(),
		})
	}
}
