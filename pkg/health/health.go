package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker is implemented by dependencies that can report their health,
// such as *redis.Client and *database.PostgresDB.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type component struct {
	name    string
	checker Checker
}

// Handler serves the liveness and readiness endpoints
type Handler struct {
	service    string
	components []component
	timeout    time.Duration
}

// NewHandler creates a Handler for service
func NewHandler(service string) *Handler {
	return &Handler{service: service, timeout: 3 * time.Second}
}

// Register adds a readiness dependency. A nil checker is reported as
// "not configured" and does not fail readiness.
func (h *Handler) Register(name string, checker Checker) *Handler {
	h.components = append(h.components, component{name: name, checker: checker})
	return h
}

// Health reports liveness
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks every registered dependency
// GET /ready
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.components))
	for _, comp := range h.components {
		if comp.checker == nil {
			checks[comp.name] = "not configured"
			continue
		}
		if err := comp.checker.HealthCheck(ctx); err != nil {
			checks[comp.name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[comp.name] = "healthy"
	}

	ready := "ready"
	if status != http.StatusOK {
		ready = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":  ready,
		"service": h.service,
		"checks":  checks,
	})
}

// Mount registers /health and /ready on r
func (h *Handler) Mount(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}
