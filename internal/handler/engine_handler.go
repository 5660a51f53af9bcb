// internal/handler/engine_handler.go
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"obd-service/internal/engine"
	"obd-service/internal/model"
	"obd-service/internal/service"
	"obd-service/internal/utils"
)

// EngineHandler handles diagnostic engine HTTP requests
type EngineHandler struct {
	engineService *service.EngineService
	logger        *utils.ServiceLogger
}

// NewEngineHandler creates a new engine handler
func NewEngineHandler(engineService *service.EngineService, logger *zap.Logger) *EngineHandler {
	return &EngineHandler{
		engineService: engineService,
		logger:        utils.NewServiceLogger(logger, "engine-handler"),
	}
}

// RegisterRoutes registers engine-related routes
func (h *EngineHandler) RegisterRoutes(router *gin.RouterGroup) {
	eng := router.Group("/engine")
	{
		eng.GET("/status", h.GetStatus)
		eng.POST("/start", h.StartEngine)
		eng.POST("/stop", h.StopEngine)
		eng.POST("/debug", h.SetDebug)

		eng.GET("/metrics", h.GetMetrics)
		eng.GET("/metrics/:metric", h.GetMetric)

		eng.GET("/dtc", h.GetTroubleCodes)
		eng.POST("/dtc/clear", h.ClearTroubleCodes)

		eng.GET("/scan", h.GetLastScan)
		eng.POST("/scan", h.TriggerScan)
		eng.GET("/candidates", h.GetCandidates)
	}
}

// GetStatus returns the engine status
// @Summary Engine status
// @Description Get connection state, failure counters, poll schedule and the working transmission temperature candidate
// @Tags Engine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.EngineStatusView} "Engine status"
// @Router /engine/status [get]
func (h *EngineHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Engine status", h.engineService.Status())
}

// StartEngine starts the diagnostic loop
// @Summary Start the engine
// @Description Start the diagnostic loop, or force an immediate reconnect attempt when it is already running
// @Tags Engine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.EngineStatusView} "Engine started"
// @Failure 503 {object} utils.APIResponse "Command queue full"
// @Router /engine/start [post]
func (h *EngineHandler) StartEngine(c *gin.Context) {
	if err := h.engineService.StartEngine(); err != nil {
		h.respondCommandError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Engine started", h.engineService.Status())
}

// StopEngine stops the diagnostic loop
// @Summary Stop the engine
// @Description Stop the diagnostic loop and close the adapter connection. Stopping a stopped engine is a no-op.
// @Tags Engine
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.EngineStatusView} "Engine stopped"
// @Router /engine/stop [post]
func (h *EngineHandler) StopEngine(c *gin.Context) {
	h.engineService.StopEngine()
	utils.SuccessResponse(c, http.StatusOK, "Engine stopped", h.engineService.Status())
}

// SetDebug toggles raw wire tracing
// @Summary Toggle debug tracing
// @Description Enable or disable RAW_TRACE events carrying every byte exchanged with the adapter
// @Tags Engine
// @Accept json
// @Produce json
// @Param request body DebugRequest true "Debug toggle"
// @Success 202 {object} utils.APIResponse{data=service.CommandReceipt} "Command queued"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Engine not running"
// @Router /engine/debug [post]
func (h *EngineHandler) SetDebug(c *gin.Context) {
	var req DebugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.engineService.SetDebug(req.Enabled)
	if err != nil {
		h.respondCommandError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Debug command queued", receipt)
}

// GetMetrics returns the last known value of every metric
// @Summary Metric snapshot
// @Description Get the last decoded value of every polled metric. Timestamps tell how fresh each value is.
// @Tags Metrics
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.MetricValue} "Metric values"
// @Router /engine/metrics [get]
func (h *EngineHandler) GetMetrics(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Metric values", h.engineService.Metrics())
}

// GetMetric returns the last known value of one metric
// @Summary Single metric
// @Description Get the last decoded value of one metric
// @Tags Metrics
// @Produce json
// @Param metric path string true "Metric name" Enums(rpm, coolant, speed, voltage, trans_temp)
// @Success 200 {object} utils.APIResponse{data=model.MetricValue} "Metric value"
// @Failure 404 {object} utils.APIResponse "Unknown metric or no value yet"
// @Router /engine/metrics/{metric} [get]
func (h *EngineHandler) GetMetric(c *gin.Context) {
	metric, ok := parseMetricName(c.Param("metric"))
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown metric", nil)
		return
	}

	value, ok := h.engineService.Metric(metric)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "No value for metric yet", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Metric value", value)
}

// GetTroubleCodes returns the stored trouble codes
// @Summary Stored trouble codes
// @Description Get the last read stored diagnostic trouble codes with descriptions
// @Tags Trouble codes
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.TroubleCodeReport} "Stored codes"
// @Router /engine/dtc [get]
func (h *EngineHandler) GetTroubleCodes(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Stored trouble codes", h.engineService.TroubleCodes())
}

// ClearTroubleCodes queues a clear-codes command
// @Summary Clear stored codes
// @Description Queue a Mode 04 clear. The request must carry the confirmation token; without it nothing reaches the vehicle. Clearing also resets readiness monitors.
// @Tags Trouble codes
// @Accept json
// @Produce json
// @Param request body ClearCodesRequest true "Confirmation"
// @Success 202 {object} utils.APIResponse{data=service.CommandReceipt} "Command queued"
// @Failure 403 {object} utils.APIResponse "Confirmation token missing or wrong"
// @Failure 409 {object} utils.APIResponse "No vehicle connection"
// @Failure 503 {object} utils.APIResponse "Command queue full"
// @Router /engine/dtc/clear [post]
func (h *EngineHandler) ClearTroubleCodes(c *gin.Context) {
	var req ClearCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.engineService.ClearCodes(req.Confirm)
	if err != nil {
		h.respondCommandError(c, err)
		return
	}

	h.logger.Info("Clear codes queued", zap.String("command_id", receipt.CommandID.String()))
	utils.SuccessResponse(c, http.StatusAccepted, "Clear codes queued", receipt)
}

// GetLastScan returns the last candidate scan outcome
// @Summary Last scan outcome
// @Description Get the result of the most recent transmission temperature candidate scan, including warnings
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.ScanReport} "Scan outcome"
// @Failure 404 {object} utils.APIResponse "No scan has completed yet"
// @Router /engine/scan [get]
func (h *EngineHandler) GetLastScan(c *gin.Context) {
	report, ok := h.engineService.LastScan()
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "No scan has completed yet", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Last scan outcome", report)
}

// TriggerScan queues a candidate rescan
// @Summary Trigger a rescan
// @Description Queue a rescan of the transmission temperature candidate table. Runs immediately when connected, otherwise after the next connect.
// @Tags Discovery
// @Produce json
// @Success 202 {object} utils.APIResponse{data=service.CommandReceipt} "Command queued"
// @Failure 409 {object} utils.APIResponse "Engine not running"
// @Failure 503 {object} utils.APIResponse "Command queue full"
// @Router /engine/scan [post]
func (h *EngineHandler) TriggerScan(c *gin.Context) {
	receipt, err := h.engineService.TriggerScan()
	if err != nil {
		h.respondCommandError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Rescan queued", receipt)
}

// GetCandidates returns the candidate table
// @Summary Candidate table
// @Description Get the transmission temperature candidate table in probe order
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.Candidate} "Candidate table"
// @Router /engine/candidates [get]
func (h *EngineHandler) GetCandidates(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Candidate table", h.engineService.Candidates())
}

// respondCommandError maps service and queue errors onto HTTP statuses
func (h *EngineHandler) respondCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConfirmationRequired):
		utils.SafetyViolationResponse(c, err.Error())
	case errors.Is(err, service.ErrVehicleOffline):
		utils.ErrorResponse(c, http.StatusConflict, "No vehicle connection", err)
	case errors.Is(err, engine.ErrEngineStopped):
		utils.ErrorResponse(c, http.StatusConflict, "Engine is not running", err)
	case errors.Is(err, engine.ErrEngineRunning):
		utils.ErrorResponse(c, http.StatusConflict, "Engine is already running", err)
	case errors.Is(err, engine.ErrQueueFull):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Command queue full", err)
	default:
		h.logger.Error("Command failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Command failed", err)
	}
}

// parseMetricName resolves a path segment like "trans_temp" to its metric
func parseMetricName(name string) (model.Metric, bool) {
	metric := model.Metric(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range model.AllMetrics {
		if metric == known {
			return metric, true
		}
	}
	return "", false
}

// Request bodies

// ClearCodesRequest carries the confirmation token for a clear-codes command
type ClearCodesRequest struct {
	Confirm string `json:"confirm"`
}

// DebugRequest toggles raw wire tracing
type DebugRequest struct {
	Enabled bool `json:"enabled"`
}
