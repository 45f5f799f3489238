// Package health aggregates named subsystem probes behind one endpoint.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// checkTimeout bounds a single probe so one hung subsystem cannot
// stall the whole health endpoint.
const checkTimeout = 2 * time.Second

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker and reports aggregate health
// plus the individual results. Each probe gets its own timeout.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		statuses[i] = nc.check(cctx)
		cancel()
		statuses[i].Name = nc.name
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// Handler serves the aggregate health report. Unhealthy subsystems
// turn the response into a 503 so load balancers rotate the node out.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		healthy, statuses := r.CheckAll(c.Request.Context())
		code := http.StatusOK
		state := "ok"
		if !healthy {
			code = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(code, gin.H{
			"status": state,
			"checks": statuses,
		})
	}
}

// DatabaseChecker probes a sql.DB with a ping.
func DatabaseChecker(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}

// RunningChecker reports healthy while running() returns true. Used
// for background loops like the settlement sweeper.
func RunningChecker(running func() bool) Checker {
	return func(ctx context.Context) Status {
		if !running() {
			return Status{Healthy: false, Detail: "not running"}
		}
		return Status{Healthy: true}
	}
}
