// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"obd-service/internal/service"
	"obd-service/internal/utils"
)

// DiscoveryHandler handles adapter port discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	disc := router.Group("/discovery")
	{
		disc.GET("/scan", h.ScanPorts)
		disc.GET("/scanners", h.GetScanners)
	}
}

// ScanPorts scans for candidate adapter ports
// @Summary Scan for adapter ports
// @Description Scan serial ports and the USB bus for likely ELM327 adapters, ranked by confidence
// @Tags Discovery
// @Accept json
// @Produce json
// @Param type query string false "Scan type" Enums(all, serial, usb) default(all)
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]discovery.DiscoveredPort}} "Port scan completed"
// @Failure 400 {object} utils.APIResponse "Unsupported scan type"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	scanType := c.DefaultQuery("type", "all") // all, serial, usb
	switch scanType {
	case "all", "serial", "usb":
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, "Unsupported scan type", nil)
		return
	}

	ports, err := h.discoveryService.ScanPorts(c.Request.Context(), scanType)
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// GetScanners returns available scanner backends
// @Summary Get available scanners
// @Description Get the scanner backends usable on this platform
// @Tags Discovery
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{scanners=[]string}} "Scanners retrieved"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) GetScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.discoveryService.Scanners(),
	})
}
