package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// DependencyCheck is an extra backend probed by the health endpoint, such as
// the campaign queue.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler pings the database and every dependency. Any failure turns
// the response into a 503.
func HealthHandler(pool *pgxpool.Pool, deps ...DependencyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body, healthy := checkHealth(ctx, pool.Ping, deps)
		body["pool"] = GetPoolStats(pool)
		if !healthy {
			body["pool"].(*PoolStats).Healthy = false
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

func checkHealth(ctx context.Context, dbPing func(context.Context) error, deps []DependencyCheck) (map[string]interface{}, bool) {
	healthy := true
	checks := make(map[string]string, len(deps)+1)

	if err := dbPing(ctx); err != nil {
		healthy = false
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}
	for _, d := range deps {
		if err := d.Ping(ctx); err != nil {
			healthy = false
			checks[d.Name] = err.Error()
			continue
		}
		checks[d.Name] = "ok"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return map[string]interface{}{"status": status, "checks": checks}, healthy
}
