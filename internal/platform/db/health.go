package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// Stater is satisfied by *pgxpool.Pool.
type Stater interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

func statsOf(s *pgxpool.Stat) PoolStats {
	return PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// HealthHandler pings the database and reports pool statistics.
func HealthHandler(pool Stater) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := statsOf(pool.Stat())
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
