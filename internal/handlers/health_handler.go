package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Health(backend string, store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "OK",
			"service": "hiver-api",
			"store":   backend,
		}
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				body["status"] = "DEGRADED"
				body["error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
