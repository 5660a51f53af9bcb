// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"obd-service/internal/config"
	"obd-service/internal/service"
	"obd-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	engineService *service.EngineService
	config        *config.Config
	logger        *utils.ServiceLogger
	started       time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(engineService *service.EngineService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		engineService: engineService,
		config:        config,
		logger:        utils.NewServiceLogger(logger, "health-handler"),
		started:       time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/health/engine", h.EngineHealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Get overall service health including engine loop and vehicle connection state
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.engineService.Status()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.started).String(),
		Checks:    make(map[string]CheckResult),
	}

	// Engine loop check
	if status.Running {
		health.Checks["engine"] = CheckResult{
			Status:  "healthy",
			Message: "Engine loop running",
		}
	} else {
		health.Status = "unhealthy"
		health.Checks["engine"] = CheckResult{
			Status:  "unhealthy",
			Message: "Engine loop stopped",
		}
	}

	// Vehicle connection check. An offline vehicle does not make the
	// service unhealthy, the reconnect supervisor keeps retrying.
	vehicle := CheckResult{
		Status:  "healthy",
		Message: "Vehicle connected",
	}
	if !status.Connection.State.IsOnline() {
		vehicle.Status = "degraded"
		vehicle.Message = "No vehicle connection"
	}
	vehicle.Data = map[string]interface{}{
		"state":  status.Connection.State,
		"reason": status.Connection.Reason,
	}
	health.Checks["vehicle"] = vehicle

	// Engine loop stats
	health.Checks["engine_stats"] = CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"queue_depth":          status.QueueDepth,
			"consecutive_failures": status.Failures,
			"transport":            status.Transport,
			"scan_completed":       status.ScanCompleted,
		},
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// EngineHealthCheck checks the engine loop and connection in detail
// @Summary Engine health check
// @Description Check the diagnostic engine loop and vehicle connection
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse "Engine is healthy"
// @Failure 503 {object} utils.APIResponse "Engine is not running"
// @Router /health/engine [get]
func (h *HealthHandler) EngineHealthCheck(c *gin.Context) {
	status := h.engineService.Status()

	if !status.Running {
		h.logger.Error("Engine health check failed", zap.String("state", string(status.Connection.State)))
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Engine not running", nil)
		return
	}

	response := gin.H{
		"status":               "healthy",
		"connection_state":     status.Connection.State,
		"consecutive_failures": status.Failures,
		"last_success":         status.LastSuccess,
		"queue_depth":          status.QueueDepth,
		"transport":            status.Transport,
	}

	utils.SuccessResponse(c, http.StatusOK, "Engine is healthy", response)
}

// ReadinessCheck for Kubernetes readiness probe
// @Summary Readiness check
// @Description Check if service is ready to accept traffic
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	// Ready once the engine loop runs. Vehicle connectivity is not
	// required, reads serve stale snapshots while reconnecting.
	if !h.engineService.Status().Running {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "engine loop not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Description Check if service is alive
// @Tags Health
// @Accept json
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	// Simple liveness check - service is alive if it can respond
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
